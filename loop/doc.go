// Package loop identifies natural loop regions and classifies their shape.
//
// Back edges found by dominance analysis are grouped by target: all back
// edges sharing a target define one region with that header. Region bodies
// are the natural loops of those back edges. Retreating edges whose target
// does not dominate their source, and regions that overlap without nesting,
// are marked irreducible and degrade gracefully downstream instead of
// failing the function.
package loop
