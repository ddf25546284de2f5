/*
Package nostrchess is a client engine for chess games played over nostr
relays.

# Overview

A Client keeps a local view of games in sync with one relay at a time:

  - relay frames are decoded and every event is verified before use
  - verified events are stored and projected into game starts, moves and chat
  - after each projected start or move the game's head is re-resolved
  - resolved state and connectivity changes are published on in-process feeds

Moves may arrive late, out of order, or fork. Resolution always follows the
earliest legal continuation, so every client holding the same events agrees
on the head.

# Basic Usage

	cfg, err := config.Load("client.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	client, err := nostrchess.New(cfg, nostrchess.WithLogger(slog.Default()))
	if err != nil {
	    log.Fatal(err)
	}
	defer client.Close()

	client.Feed().Games.Subscribe(func(ctx context.Context, gameID string, s nostrchess.GameState) {
	    fmt.Println(gameID, s.Head.ID(), s.FEN)
	})

	if err := client.Start(ctx); err != nil {
	    log.Fatal(err)
	}
	client.WatchGame(gameID)

# Publishing

Builders produce unsigned events with the configured kinds. Publish signs
with the configured key, ingests locally, then sends:

	res, err := client.Publish(ctx, client.NewGameMove(gameID, parentID, "1. e4 e5"))

# Connectivity

Status reports DISCONNECTED, CONNECTING or OPEN plus a healthy flag that
turns on once a connection has stayed open for the healthy dwell. Protocol
errors are logged, never surfaced.
*/
package nostrchess
