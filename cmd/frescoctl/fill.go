package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaheed/fresco/internal/fill"
)

var (
	fillWebservice string
	fillMozilla    string
	fillDate       string

	fillItemField          string
	fillUserField          string
	fillItemFileIdentifier string
	fillUserFileIdentifier string
	fillItemGenres         string
	fillItemLocales        string
	fillUserItems          string
	fillUserItemIdentifier string
	fillUserItemAcquired   string
	fillUserItemDropped    string
	fillDateFormat         string
)

var fillCmd = &cobra.Command{
	Use:   "fill {items|users} [path]",
	Short: "Load item and user dumps into the store",
	Long: `Load .json dumps into the store from a local directory, a .tgz archive
URL (--webservice) or the Mozilla Marketplace daily tarballs (--mozilla
dev|prod, picking the day with --date). The field-mapping flags rename the
dump fields a load reads; --mozilla switches to the Marketplace preset and
ignores them. --mozilla combined with a path applies the preset to local
files instead of downloading.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind fill.Kind
		switch args[0] {
		case "items":
			kind = fill.KindItems
		case "users":
			kind = fill.KindUsers
		default:
			return fmt.Errorf("first argument must be items or users, got %q", args[0])
		}

		st, err := openPostgres(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close(cmd.Context())

		mapping := fill.Mapping{
			ItemFileIdentifier: fillItemFileIdentifier,
			ItemField:          fillItemField,
			ItemGenresField:    fillItemGenres,
			ItemLocalesField:   fillItemLocales,
			UserFileIdentifier: fillUserFileIdentifier,
			UserField:          fillUserField,
			UserItemsField:     fillUserItems,
			UserItemIdentifier: fillUserItemIdentifier,
			UserItemAcquired:   fillUserItemAcquired,
			UserItemDropped:    fillUserItemDropped,
			DateLayout:         fillDateFormat,
		}
		if fillMozilla != "" {
			mapping = fill.MozillaMapping()
		}
		loader := fill.New(st, mapping)

		var stats fill.Stats
		switch {
		case fillWebservice != "":
			stats, err = loader.LoadURL(cmd.Context(), kind, fillWebservice)
		case len(args) == 2:
			stats, err = loader.LoadDir(cmd.Context(), kind, args[1])
		case fillMozilla != "":
			day, derr := fill.ResolveDate(fillDate, time.Now())
			if derr != nil {
				return derr
			}
			url, uerr := fill.MozillaURL(fillMozilla, day)
			if uerr != nil {
				return uerr
			}
			stats, err = loader.LoadURL(cmd.Context(), kind, url)
		default:
			return errors.New("a path, --webservice or --mozilla source is required")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d files: %d items, %d users, %d inventory rows, %d skipped\n",
			stats.Files, stats.Items, stats.Users, stats.Inventory, stats.Skipped)
		items, err := st.CountItems(cmd.Context())
		if err != nil {
			return err
		}
		users, err := st.CountUsers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "store now holds %d items and %d users\n", items, users)
		return nil
	},
}

func init() {
	def := fill.DefaultMapping()
	f := fillCmd.Flags()
	f.StringVar(&fillWebservice, "webservice", "", "download a .tgz dump from this URL")
	f.StringVar(&fillMozilla, "mozilla", "", "load the Mozilla Marketplace daily dump: dev or prod")
	f.StringVar(&fillDate, "date", "", "dump day for --mozilla: today, yesterday (default) or YYYY-MM-DD")
	f.StringVarP(&fillItemField, "item", "i", def.ItemField, "item identifier field")
	f.StringVarP(&fillUserField, "user", "u", def.UserField, "user identifier field")
	f.StringVar(&fillItemFileIdentifier, "item-file-identifier", def.ItemFileIdentifier, "field that marks an item object")
	f.StringVar(&fillUserFileIdentifier, "user-file-identifier", def.UserFileIdentifier, "field that marks a user object")
	f.StringVar(&fillItemGenres, "item-genres", def.ItemGenresField, "item genres field")
	f.StringVar(&fillItemLocales, "item-locales", def.ItemLocalesField, "item locales field")
	f.StringVar(&fillUserItems, "user-items", def.UserItemsField, "user inventory field")
	f.StringVar(&fillUserItemIdentifier, "user-item-identifier", def.UserItemIdentifier, "item identifier inside inventory rows")
	f.StringVar(&fillUserItemAcquired, "user-item-acquired", def.UserItemAcquired, "inventory acquisition date field")
	f.StringVar(&fillUserItemDropped, "user-item-dropped", def.UserItemDropped, "inventory drop date field")
	f.StringVar(&fillDateFormat, "date-format", def.DateLayout, "date layout for inventory rows")
}
