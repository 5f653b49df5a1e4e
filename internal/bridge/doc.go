// Package bridge runs publishing contexts ("bridges") that expose platform
// entities as protocol devices.
//
// # Components
//
//   - DeviceMapping: one entity bound to one published representation. It
//     subscribes to the Entity State Store before publishing, projects every
//     change through its Variant on a single goroutine, and forwards inbound
//     commands to the platform.
//   - Bridge: one publishing context (commissioning identity, network port)
//     and the DeviceMappings built inside it.
//   - Manager: the Bridge Lifecycle Manager. It is the only writer of bridge
//     status and the single source of truth for which bridges exist.
//
// # Lifecycle
//
//	stopped/error --Start--> starting --context open--> running
//	starting --context open fails--> error (ErrStartupFailed)
//	running --publishing context fails--> error
//	any --Stop--> stopped
//
// Entities that cannot be mapped (no snapshot, no variant) are left out of a
// bridge; they never fail startup. Stopping a bridge cancels mapping
// construction still in flight, tears down every mapping (store
// subscriptions released, representations detached) and closes the
// publishing context. Platform actions already issued run to completion.
//
// # Error handling
//
// Failures stay at the smallest scope: a projection failure affects one
// update of one mapping, an action failure is logged and not retried, and a
// startup failure affects one bridge.
package bridge
