// Package gmail provides a client for the two Gmail API calls the notifier
// makes.
//
// Profile resolves the authenticated user's email address, which becomes the
// storage key for all records. SearchSince lists messages matching the
// stored search query received after the last completed check.
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := gmail.NewClient(ctx, tokenSource)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	email, err := client.Profile(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	matched, err := client.SearchSince(ctx, "from:billing is:unread", lastRun)
//	if err != nil {
//	    log.Fatal(err)
//	}
package gmail
