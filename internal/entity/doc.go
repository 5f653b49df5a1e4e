// Package entity holds the live view of the home-automation platform's
// entities: the Entity State Store.
//
// The store keeps the latest Snapshot per entity id together with the
// platform's entity and device registry metadata. It is written only by the
// platform client (state_changed events and resync bursts) and read by
// everything else.
//
// # Delivery
//
// Subscribe returns a Subscription for one entity. Each subscription owns a
// small mailbox: the producer never blocks, deliveries for one entity arrive
// in the order they were applied, and when a slow consumer falls behind the
// oldest pending snapshots are coalesced away. The newest snapshot is never
// dropped, so a consumer that re-reads the store always converges on the
// latest state.
//
// # Thread Safety
//
// All Store and Subscription methods are safe for concurrent use. Snapshots
// are deep-copied on the way in and on the way out.
package entity
