// Package search finds shortest paths between two nodes of a graph whose
// edges are fetched lazily, one node at a time.
//
// The Engine runs a layered breadth-first search. Layers are processed
// strictly one after another, which makes the first path reaching the
// target a shortest one. Within a layer, frontier nodes are fetched
// concurrently in windows and scanned in frontier order, so results do not
// depend on scheduling.
//
// # Filtered search
//
// A filtered search admits an intermediate node only when the classifier
// holds for it. Each layer runs in two phases: collect fetches the whole
// frontier and gathers the distinct unvisited neighbors, then filter
// classifies them with one batched call. The target is admitted whatever its
// classification.
//
// # Usage
//
//	engine := search.NewEngine(source, search.WithClassifier(classifier))
//
//	res, err := engine.ShortestFilteredPath(ctx, "Kevin_Bacon", "Albert_Einstein", 4)
//	if err != nil {
//	    return err
//	}
//	if res.Found {
//	    fmt.Println(strings.Join(res.Path, " -> "))
//	}
package search
