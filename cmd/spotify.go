package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/audiocache/internal/formatter"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) requireSpotify() error {
	if err := r.open(); err != nil {
		return err
	}
	if r.spotify == nil {
		return shared.NewUserError(shared.ErrMissingCredentials,
			"Spotify client credentials are not set.",
			"Set credentials.spotify.client_id and client_secret, or SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET.")
	}
	return nil
}

// SpotifyCategories lists browse categories.
func (r *Runner) SpotifyCategories(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	categories, err := r.spotify.Categories(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(categories, true)
	}

	r.writePlainHeader(formatter.Styles().Title("Spotify categories"))
	for i, c := range categories {
		r.writePlain("%d. %s (%s)\n", i+1, c.Name, c.ID)
	}
	return nil
}

// SpotifyPlaylists lists the playlists of a browse category with optional limit.
//
// Each playlist URI can be passed straight to `resolve`.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	category := cmd.StringArg("category")
	if category == "" {
		return fmt.Errorf("%w: category", shared.ErrMissingArgument)
	}
	limit := cmd.Int("limit")

	if err := r.requireSpotify(); err != nil {
		return err
	}

	r.logger.Infof("listing spotify playlists for %v with limit %v", category, limit)

	playlists, err := r.spotify.CategoryPlaylists(ctx, category)
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   URI: %s\n", p.URI)
		r.writePlain("   Tracks: %d\n", p.Tracks.Total)
		r.writePlain("\n")
	}
	return nil
}
