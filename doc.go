// Package linkpath finds the shortest chain of links between two wiki pages.
//
// Page links are not stored locally. Each page's outgoing links are fetched
// from the MediaWiki API when the search first reaches it, and cached. A
// search can be restricted so that every intermediate page is a person,
// which is decided in bulk through page props and Wikidata claims.
//
// # Basic Usage
//
// Build a client from configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := linkpath.NewFromConfig(cfg, nil, slog.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Finding Connections
//
//	conn, err := client.FindConnection(ctx, linkpath.Request{
//		From:       "kevin bacon",
//		To:         "albert einstein",
//		MaxDepth:   4,
//		PeopleOnly: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if conn.Result.Found {
//		fmt.Println(strings.Join(conn.Result.Path, " -> "))
//	} else {
//		fmt.Println("no path:", conn.Result.Reason)
//	}
//
// Titles are normalized and redirects followed before the search starts, so
// the path always begins and ends with canonical titles.
//
// # Offline Graphs
//
// Setting wiki.fixture in the configuration serves a YAML graph through the
// same interfaces as the live services. See package fixture.
package linkpath
