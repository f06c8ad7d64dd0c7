package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/taskprovider/internal/cli/config"
	"github.com/conduit-lang/taskprovider/internal/cli/ui"
	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/notify"
	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
	"github.com/conduit-lang/taskprovider/internal/uri"
)

// errReported marks a failure whose explanation was already printed
var errReported = errors.New("command failed")

func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		cmd.PrintErr(ui.ConfigError(err, o.noColor))
		return nil, errReported
	}
	return cfg, nil
}

// openProvider builds and initializes a provider backed by the configured store
func openProvider(ctx context.Context, cfg *config.Config, notifier notify.Notifier) (*provider.Provider, error) {
	storeCfg := cfg.StoreConfig()

	p, err := provider.New(provider.Options{
		Authority:   cfg.Authority,
		Collections: cfg.ProviderCollections(),
		Notifier:    notifier,
		Opener: func(ctx context.Context) (provider.Store, error) {
			return store.Open(ctx, storeCfg)
		},
	})
	if err != nil {
		return nil, err
	}

	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// target resolves the identifier argument, defaulting to the first collection
func target(p *provider.Provider, args []string) (uri.Identifier, error) {
	if len(args) == 0 {
		return p.CollectionURI(p.Collections()[0].Path), nil
	}
	id, err := uri.Parse(args[0])
	if err != nil {
		return uri.Identifier{}, fmt.Errorf("invalid identifier %q: %w", args[0], err)
	}
	return id, nil
}

// parseAssignments turns column=value pairs into values. Integer-looking
// values become int64; "null" becomes NULL.
func parseAssignments(pairs []string) (contract.Values, error) {
	values := make(contract.Values, len(pairs))
	for _, pair := range pairs {
		column, raw, ok := strings.Cut(pair, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("expected column=value, got %q", pair)
		}
		values[column] = parseScalar(raw)
	}
	return values, nil
}

func parseScalar(raw string) interface{} {
	if raw == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && strings.Contains(raw, ".") {
		return f
	}
	return raw
}

// selection builds a selection from the shared filter flags
func selection(where []string, columns []string, orderBy string, desc bool, limit int) (contract.Selection, error) {
	sel := contract.Selection{
		Columns:    columns,
		OrderBy:    orderBy,
		Descending: desc,
		Limit:      limit,
	}

	conditions, err := parseAssignments(where)
	if err != nil {
		return sel, err
	}
	for _, column := range conditions.Columns() {
		sel = sel.WithCondition(column, conditions[column])
	}
	return sel, nil
}

// report prints a dispatcher failure and returns errReported
func (o *rootOptions) report(cmd *cobra.Command, err error) error {
	cmd.PrintErr(ui.DispatchError(err, o.noColor))
	return errReported
}
