package main

import (
	"fmt"
	"log"
	"os"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/docopt/docopt-go"

	"github.com/bringyour/clientsync/clientsync"
)

const ClientSyncCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Client sync control.

Usage:
    clientsyncctl token-expiry --jwt=<jwt>
    clientsyncctl sim-cache [--steps=<steps>]

Options:
    -h --help          Show this screen.
    --version          Show version.
    --jwt=<jwt>        Your platform JWT.
    --steps=<steps>    Number of mutate/ingest cycles to simulate [default: 4].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ClientSyncCtlVersion)
	if err != nil {
		panic(err)
	}

	if tokenExpiry_, _ := opts.Bool("token-expiry"); tokenExpiry_ {
		tokenExpiry(opts)
	} else if simCache_, _ := opts.Bool("sim-cache"); simCache_ {
		simCache(opts)
	}
}

// print the decoded expiry and claims of the jwt without verifying it
func tokenExpiry(opts docopt.Opts) {
	jwt, _ := opts.String("--jwt")

	expiry, ok := clientsync.ExtractTokenExpiry(jwt)
	if !ok {
		Out.Printf("no expiry known")
	} else {
		Out.Printf("expiry: %s (in %s)", expiry.Format(time.RFC3339), time.Until(expiry))
	}

	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		Err.Printf("could not parse claims: %s", err)
		return
	}
	for claim, value := range token.Claims.(gojwt.MapClaims) {
		Out.Printf("%s: %v", claim, value)
	}
}

// offline simulation of the optimistic cache:
// each step applies a speculative append to a shared list query, then a
// scripted server acknowledges the previous step's mutation with a snapshot
// that includes its item. prints the combined snapshot after every
// operation.
func simCache(opts docopt.Opts) {
	steps, err := opts.Int("--steps")
	if err != nil {
		steps = 4
	}

	settings, err := clientsync.MutationRetryQueueSettingsFromEnv()
	if err != nil {
		panic(err)
	}
	retryQueue := clientsync.NewMutationRetryQueue(clientsync.NewMemoryQueueStore(), settings)

	cache := clientsync.NewOptimisticQueryCache()
	token := clientsync.NewQueryToken("items", nil)

	serverItems := []string{}
	pending := map[clientsync.MutationId]string{}

	printCombined := func(tag string) {
		items, _ := clientsync.DecodeQueryResult[[]string](cache.GetQueryResult(token))
		Out.Printf("%-28s combined=%v pending=%v queue=%d", tag, items, cache.PendingMutationIds(), retryQueue.Size())
	}

	for i := 0; i < steps; i += 1 {
		item := fmt.Sprintf("item-%d", i)

		mutationId, _ := cache.ApplyOptimisticUpdate(func(store *clientsync.OptimisticLocalStore) {
			items, _ := clientsync.GetQuery[[]string](store, "items", nil)
			store.SetQuery("items", nil, append(items, item))
		})
		pending[mutationId] = item
		retryQueue.Add("appendItem", []byte(fmt.Sprintf(`{"item":%q}`, item)))
		printCombined(fmt.Sprintf("apply m(%d) %s", mutationId, item))

		// server acknowledges everything applied before this step
		completed := map[clientsync.MutationId]bool{}
		for completedMutationId, completedItem := range pending {
			if completedMutationId < mutationId {
				serverItems = append(serverItems, completedItem)
				completed[completedMutationId] = true
				delete(pending, completedMutationId)
			}
		}
		snapshot := map[clientsync.QueryToken]*clientsync.QueryResult{
			token: clientsync.EncodeQueryResult("items", nil, serverItems),
		}
		cache.IngestServerResults(snapshot, completed)
		retryQueue.Process(func(entry *clientsync.MutationQueueEntry) error {
			return nil
		})
		printCombined(fmt.Sprintf("ingest acked=%d", len(completed)))
	}
}
