// Package asyncx holds the small set of concurrency helpers the service
// layers share.
//
// # Futures
//
// [Run] starts work immediately and [Future.Await] blocks until it is ready.
// Await may be called any number of times, from any goroutine, and always
// returns the same result. The orchestration layer starts the set-up factors
// and the MFA requirements once, ahead of filtering the factors a session
// may set up; the requirements future awaits the set-up one.
//
//	setUpF := asyncx.Run(func() ([]mfa.FactorID, error) {
//	    return recipe.FactorsSetUpForUser(ctx, u, tenantID)
//	})
//	requirementsF := asyncx.Run(func() (mfa.RequirementList, error) {
//	    setUp, err := setUpF.Await()
//	    ...
//	})
//
// # Fan-out
//
// [All] runs functions concurrently and collects results in input order.
// It waits for every goroutine before returning the first error.
//
// # Retries
//
// [RetryWithBackoff] retries with exponential backoff and respects context
// cancellation between attempts. [RetryWithBackoffIf] only retries errors the
// predicate accepts; the core HTTP client uses it to retry transport failures
// of idempotent reads and nothing else.
//
//	u, err := asyncx.RetryWithBackoffIf(ctx, 3, 100*time.Millisecond, isTransient,
//	    func(ctx context.Context) (*user.User, error) { return c.getUser(ctx, id) },
//	)
package asyncx
