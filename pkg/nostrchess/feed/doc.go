// Package feed fans resolved game state and connectivity changes out to
// in-process observers such as a UI or a move-suggestion bot.
package feed
