// Package miniaudio captures microphone audio with miniaudio (malgo).
package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-livebridge/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient
}

// NewClient opens the default capture device for encodingInfo. Only
// linear16 can be captured.
func NewClient(encodingInfo audio.EncodingInfo) (*Client, error) {
	if encodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("cannot capture %s audio, only %s is supported", encodingInfo.Format.Name(), audio.EncodingLinear16.Name())
	}
	if err := encodingInfo.Validate(); err != nil {
		return nil, err
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{
		audioContext:  audioCtx,
		captureClient: captureClient{encodingInfo: encodingInfo},
	}

	if err := client.captureClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

// StartCapture delivers captured fragments to onAudio from the audio
// thread. onAudio must copy the fragment if it keeps it.
func (c *Client) StartCapture(onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.captureClient.encodingInfo
}
