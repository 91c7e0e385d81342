// Package jobs provides the job-run ledger and the background job runner.
//
// # Overview
//
// Every invocation of a scheduled processor is recorded as a job run with a
// status of running, completed or failed and a JSON details document that is
// merged, not replaced, on each progress update. Operators poll the ledger to
// observe liveness; a run left `running` past its expected duration means the
// job is stuck or its process crashed.
//
// # Ledger
//
//	ledger := jobs.NewLedger(db)
//	runID, _ := ledger.Start(ctx, "billing_cycle", map[string]any{"total": 0})
//	ledger.Update(ctx, runID, map[string]any{"processed": 10})
//	ledger.Complete(ctx, runID, map[string]any{"processed": 42})
//
// # Runner
//
// Triggered jobs are submitted to a bounded queue and executed by a fixed
// worker set with panic recovery:
//
//	runner := jobs.NewRunner(ctx, 2, 16, time.Hour, logger)
//	err := runner.Submit("billing_cycle", func(ctx context.Context) error {
//		return processor.Execute(ctx, runID)
//	})
//
// Submit returning nil means accepted, not completed.
//
// # Related Packages
//
//   - pkg/billing: Processors record their runs here
//   - pkg/api: Trigger endpoints submit to the runner and return the run ID
package jobs
