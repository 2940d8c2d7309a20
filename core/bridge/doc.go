// Package bridge binds browser push streams to streaming speech
// recognition connections.
//
// A Registry creates one Session per push stream. The session opens its
// upstream connection in the background, relays recognizer results to its
// sink as encoded frames and accepts audio fragments through Feed from any
// number of concurrent callers. Whatever ends a session first (peer
// disconnect, explicit close, upstream close, idle timeout or shutdown)
// runs its teardown; every later attempt is a no-op.
package bridge
