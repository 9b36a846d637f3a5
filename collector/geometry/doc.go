// Package geometry holds the pure coordinate and curve helpers used when routes
// are built or consumed: projecting waypoints into a vehicle-aligned (ego)
// frame and back, and least-squares Bézier smoothing of waypoint lists.
//
// Nothing here touches the simulator; every function is stateless.
package geometry
