// app is the auto-delete engine: a per-user channel allow-list, a queue of messages
// waiting to be deleted, and the scheduler draining that queue.
//
// *. A user enables a channel (channel id + team id). Only messages the user sends
//    afterwards in that channel are queued.
// *. Queued messages are deleted once they are older than DeleteAfterSeconds. The loop
//    polls every PollIntervalMilliseconds and waits DeleteDelayMilliseconds between
//    two deletions.
// *. Disabling a channel does not unqueue what was already queued.
// *. A user can protect a queued message, which only removes it from the queue.
//
// Implement notes:
// Both collections are JSON documents behind a DocumentStore (file or database).
// Every load-modify-store on a collection happens under that collection's mutex, and the
// scheduler never holds the queue lock while it deletes or sleeps: it snapshots the queue,
// deletes, then applies its own outcomes to a fresh read. Enqueues and protects made in
// between are therefore kept.
//
// Mattermost plugins serve every user of the server, so the Registry keeps one Engine per
// user with collections namespaced by user id, plus an "owners" collection listing those
// users so their schedulers come back after a restart.
package app
