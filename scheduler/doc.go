// Package scheduler implements fuel-metered preemptive scheduling for
// async tasks: four priority bands with round-robin within a band,
// quantum sizing scaled by priority, three preemption conditions
// (quantum exhaustion, a higher-priority task becoming ready, deadline
// violation), priority aging for starvation avoidance, and a bounded
// priority-inheritance chain for tasks blocked on a resource held by a
// lower-priority holder.
package scheduler
