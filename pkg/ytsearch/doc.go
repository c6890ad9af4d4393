// Package ytsearch provides a client for the YouTube Data API v3
// search endpoint.
//
// The client covers the single operation the player needs: finding
// embeddable videos for a free-text query. It is designed to be used
// as a standalone SDK.
//
// Example usage:
//
//	import "github.com/mkleene/chime/pkg/ytsearch"
//
//	client, err := ytsearch.NewClient(ytsearch.Config{
//	    APIKey: "your-api-key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := client.Search(ctx, "daft punk", 10)
package ytsearch
