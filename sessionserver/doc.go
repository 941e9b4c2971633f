// Package sessionserver implements both halves of the session hijack: a
// local HTTP/1.1 endpoint that impersonates the Mojang session service to
// capture the launcher's join request, and the outbound client that replays
// that request against the real service with a digest recomputed over the
// proxy's own key material.
//
// The launcher must be pointed at the local endpoint (the original trick is
// patching the authlib jar so YggdrasilMinecraftSessionService posts to
// http://localhost:8080 instead of the official HTTPS host).
package sessionserver
