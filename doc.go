/*
Package viewstream implements a streaming client for view and spatial index
queries against a Couchbase-style document store.

# Usage

Create a client, issue a query with a row handler, then pump the handle:

	import (
		"context"

		"github.com/viewstream/viewstream-go"
	)

	func main() {
		client, err := viewstream.Open("http://localhost:8092/beer-sample")
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		handler := func(h *viewstream.Handle, batch []viewstream.Row) {
			if batch == nil {
				// completion: terminal fields are readable now
				fmt.Println("done:", h.Status())
				return
			}
			for _, row := range batch {
				fmt.Printf("%s => %s\n", row.Key, row.Value)
			}
		}

		h, err := client.IssueQuery(context.Background(),
			&viewstream.Query{DesignDoc: "beer", View: "by_name"}, handler, 0)
		if err != nil {
			log.Fatal(err)
		}
		if err := h.Await(context.Background()); err != nil {
			log.Fatal(err)
		}
	}

The handler receives rows in wire order, in batches of at most the
configured batch threshold, followed by exactly one nil batch marking
completion. A non-success result is not delivered as an error: inspect
h.Status() after completion.

# Connection via DSN (Data Source Name)

The DSN format is:

	http(s)://[user:password@]host[:port]/bucket?param=value

Supported optional connection parameters can be specified in param=value and include:

  - timeout: Adds timeout (in seconds) for the entire view request. Default is no timeout
  - batchThreshold: Rows buffered before an intermediate flush to the handler. Default is 20
  - retries: Max transport retries. Default is 4
  - userAgentEntry: Used to identify partners. Set as a string with format <isv-name+product-name>

# Errors

There are three types of error returned by the client:

  - Submission error: the engine rejected the query at issuance. No handle
    or correlation token is left behind.
  - Execution error: the event pump failed after the query was accepted,
    e.g. the pumping context was cancelled.
  - System fault: a client bug or a broken engine contract.

Each can be checked with errors.Is() against the values exported by the
errors subpackage.
*/
package viewstream
