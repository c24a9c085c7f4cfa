// Package router routes commands to the servers of a replicated or
// clustered deployment.
//
// A Router owns every connection and the topology store. A single
// goroutine receives commands, topology requests and connection events
// through one mailbox, resolves each command to a server (the slot owner,
// or one of its replicas when the command prefers them), writes it, and
// completes the caller's result channel when the reply arrives.
//
// MOVED replies update the slot table and the command is resent to the
// new owner. ASK replies resend the command once, preceded by ASKING,
// without touching the table. CLUSTERDOWN, LOADING, TRYAGAIN and
// MASTERDOWN are retried with backoff. When a connection breaks its
// pending commands are routed again; a broken replica is dropped from
// the topology and a broken primary triggers a resync.
package router
