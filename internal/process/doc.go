// Package process locates, starts and force-stops the supervised server.
//
// Controller is the only type the supervision loop talks to:
//   - EnsureStarted checks the process table for the exact process name and,
//     when nothing is running, resolves the executable (configured path first,
//     then a recursive search of the install roots), launches it detached and
//     waits out the grace period.
//   - KillAll force-kills every process whose name matches a wildcard and
//     waits out the settle period when anything was killed.
//
// The process table, launcher, killer and sleep are injected so the controller
// can be driven without touching real processes:
//
//	ctrl := process.NewController(&cfg,
//	    process.WithEventBus(bus),
//	    process.WithSleep(process.Sleep),
//	)
//	if err := ctrl.EnsureStarted(ctx, true); errors.Is(err, process.ErrExecutableNotFound) {
//	    os.Exit(1)
//	}
package process
