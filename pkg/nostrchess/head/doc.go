// Package head resolves the canonical current move of a game.
//
// Starting at the game's root, the resolver repeatedly takes the earliest
// child of the current head and advances onto it if it is a legal
// continuation. It stops when the head has no children or when the
// earliest child is illegal; later siblings are not tried in that pass.
// Forks that lose are kept in the store but are unreachable from the head.
package head
