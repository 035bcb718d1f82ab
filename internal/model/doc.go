// Package model defines the typed entity graph for discovered pool
// equipment and the normalization that builds it from a merged raw
// hardware definition.
//
// # Entity Graph
//
// A System holds one or more Panels. Each Panel owns Modules, visible
// Features, Pumps, and Sensors; Modules own Bodies and Heaters. The
// graph is rebuilt wholesale by each discovery cycle and then mutated in
// place by live updates.
//
// # Normalization Rules
//
// The raw-to-typed walk is tolerant: missing parameters become zero
// values and unknown object types are skipped. Visibility of circuits as
// Features follows fixed rules (legacy circuits never, lighting-colour
// circuits always, otherwise the feature flag or the include-all
// override). Only variable-speed pump subtypes enter the graph.
//
// # Correlation
//
// Bodies reference their underlying circuit by name and subtype match,
// heaters reference bodies by id, and pump circuits reference circuits
// by id. All references are weak: a dangling id resolves to nil at query
// time instead of failing normalization.
package model
