// Command monstergen enriches the sprite catalogue with movement AI and
// combat stats, writing the file the game page loads at startup.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/DoyleJ11/coop-relay/internal/monsters"
)

func main() {
	cmd := &cli.Command{
		Name:  "monstergen",
		Usage: "generate game_data.json from monsters.json",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Value: "assets/monsters.json", Usage: "sprite catalogue to read"},
			&cli.StringFlag{Name: "out", Value: "assets/game_data.json", Usage: "enemy definitions to write"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "monstergen:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	raw, err := os.ReadFile(cmd.String("in"))
	if err != nil {
		return err
	}
	src, err := monsters.Parse(raw)
	if err != nil {
		return err
	}

	out := monsters.Enrich(src)
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := os.WriteFile(cmd.String("out"), data, 0o644); err != nil {
		return err
	}

	fmt.Printf("Generated %s with %d enemies.\n", cmd.String("out"), out.Len())
	return nil
}
