package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/Sternrassler/collection-loader/pkg/entity"
	"github.com/Sternrassler/collection-loader/pkg/filter"
	"github.com/Sternrassler/collection-loader/pkg/loader"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type browseOptions struct {
	groups []string
	search string
	steps  int
}

func newBrowseCmd(a *app) *cobra.Command {
	opts := &browseOptions{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Load a collection incrementally and print each revealed batch.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			criteria, err := parseCriteria(opts.groups, opts.search)
			if err != nil {
				return err
			}

			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			cmsClient, err := a.newClient(rdb)
			if err != nil {
				return fmt.Errorf("create CMS client: %w", err)
			}

			entities := entity.NewCache()
			renderer := newTableRenderer(out, a.cfg.NameField, a.cfg.Schema, entities)

			lc := a.cfg.LoaderConfig()
			lc.Entities = entities
			l, err := loader.New(cmsClient, cmsClient, renderer, lc)
			if err != nil {
				return err
			}

			if err := l.Start(ctx); err != nil {
				return fmt.Errorf("initial load: %w", err)
			}
			if criteria.Active() {
				l.SetCriteria(criteria)
			}

			for i := 0; i < opts.steps && renderer.available; i++ {
				if err := l.RequestMore(ctx); err != nil {
					return fmt.Errorf("show more: %w", err)
				}
			}

			state := l.State()
			fmt.Fprintf(out, "%d shown, %d loaded", l.Displayed(), len(state.Items))
			if state.TotalKnown {
				fmt.Fprintf(out, " of %d", state.Total)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.groups, "group", "g", nil, "group filter as name=value1,value2 (repeatable)")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "free-text search term")
	cmd.Flags().IntVarP(&opts.steps, "steps", "n", 0, "number of show-more requests after the first batch")
	return cmd
}

// parseCriteria turns name=v1,v2 flags and a search term into Criteria.
func parseCriteria(groups []string, search string) (filter.Criteria, error) {
	criteria := filter.Criteria{}.WithSearch(search)
	for _, g := range groups {
		name, raw, ok := strings.Cut(g, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return filter.Criteria{}, fmt.Errorf("invalid group filter %q, want name=value1,value2", g)
		}
		var values []string
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		criteria = criteria.WithGroup(name, values...)
	}
	return criteria, nil
}

// tableRenderer prints every emission as a table. Row numbers continue
// across appends and restart on a full replace.
type tableRenderer struct {
	out       io.Writer
	nameField string
	schema    filter.Schema
	entities  *entity.Cache

	shown     int
	available bool
}

func newTableRenderer(out io.Writer, nameField string, schema filter.Schema, entities *entity.Cache) *tableRenderer {
	return &tableRenderer{
		out:       out,
		nameField: nameField,
		schema:    schema,
		entities:  entities,
	}
}

func (r *tableRenderer) OnFullReplace(items []collection.Item) {
	r.shown = 0
	if len(items) == 0 {
		fmt.Fprintln(r.out, "No matching items.")
		return
	}
	r.render(items)
}

func (r *tableRenderer) OnAppend(items []collection.Item) {
	r.render(items)
}

func (r *tableRenderer) OnShowMoreAvailability(available bool) {
	r.available = available
}

func (r *tableRenderer) OnLoadError(message string) {
	fmt.Fprintf(r.out, "Could not load items: %s\n", message)
}

func (r *tableRenderer) render(items []collection.Item) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(r.out)

	header := table.Row{"#", "ID", "Name"}
	for _, g := range r.schema.Groups {
		header = append(header, g.Name)
	}
	t.AppendHeader(header)

	for _, it := range items {
		r.shown++
		name, _ := it.Text(r.nameField)
		row := table.Row{r.shown, it.ID, name}
		for _, g := range r.schema.Groups {
			row = append(row, r.cell(it, g))
		}
		t.AppendRow(row)
	}
	t.Render()
}

func (r *tableRenderer) cell(it collection.Item, g filter.GroupSpec) string {
	field := g.FieldName()
	if ids, ok := it.Refs(field); ok {
		if g.Kind == filter.KindMultiReference {
			return r.entities.Names(ids)
		}
		return strings.Join(ids, ", ")
	}
	text, _ := it.Text(field)
	return text
}
