package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/caseguard/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug        bool `help:"Enable debug mode." env:"CASEGUARD_DEBUG"`
		Version      kong.VersionFlag
		Serve        commands.ServeCmd        `cmd:"" help:"Start the record API server"`
		Migrate      commands.MigrateCmd      `cmd:"" help:"Apply pending database migrations"`
		Capabilities commands.CapabilitiesCmd `cmd:"" help:"Print the role capability table"`
		Token        commands.TokenCmd        `cmd:"" help:"Issue a development access token"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("caseguard"),
		kong.Description("Tenant scoped, role aware record access service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
