// Package subscription tracks which relay subscriptions should exist and
// which have been applied, and computes the frames that move one to the other.
//
// The relay forgets every subscription when its connection drops, so after a
// reconnect call Reset and then Reconcile to resubmit everything.
package subscription
