// Package placer injects supplied items (ads) into a content stream at
// positions chosen by server-delivered or local rules, keeping a stable
// mapping between content indices and the combined stream.
//
// Design
//
//   - Collaborators: a positioning.Source yields rules, a supply.Cache keeps
//     a small queue of ready items, and a placement.Map tracks reserved slots
//     and translates positions. The Placer owns all three.
//
//   - Serialization: every public method takes the placer mutex. Fetch
//     completions and retry timers are posted through sched.Locked, so they
//     take the same mutex. Sink callbacks run while it is held and must not
//     call back into the Placer.
//
//   - Lazy filling: slots are filled only inside the range passed to
//     PlaceInRange (plus Options.Lookahead), oldest supply first.
//
//   - Reload: LoadAds keeps the currently filled slots visible until both new
//     rules and new supply are in; then the old items are removed and the new
//     layout is filled in one step.
//
//   - Content changes: ContentInserted/ContentRemoved go through the configured
//     policy (move by default). Items whose slots disappear are reported with
//     ItemRemoved and disposed.
//
//   - Failures: retries are internal; only exhausted retries reach the Sink as
//     LoadFailed with a coarse failure.Reason.
//
// Basic usage
//
//	p := placer.New(placer.Options[*Ad]{
//	    Rules:  rules.MustNew([]int{2}, 5),
//	    Supply: supply.Options[*Ad]{Fetcher: supply.FetchFunc[*Ad](fetchAd)},
//	    Sink:   mySink,
//	})
//	defer p.Destroy()
//	p.LoadAds("home-feed")
//	p.SetContentLength(len(posts))
//	p.PlaceInRange(first, last+1)
//
// With remote rules
//
//	p := placer.New(placer.Options[*Ad]{
//	    Positioning: positioning.ServerOptions{Transport: httprules.New(httprules.Options{BaseURL: url})},
//	    Supply:      supply.Options[*Ad]{Fetcher: fetcher},
//	})
package placer
