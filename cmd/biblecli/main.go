// Command biblecli is a terminal client for the Bible study API. It streams
// search results and AI commentary to stdout as they arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bible-study/domain/bible"
	"bible-study/infrastructure/bibleapi"
	"bible-study/infrastructure/credentials"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
)

// CLI defines the command-line interface for biblecli.
var CLI struct {
	APIURL      string `name:"api-url" default:"http://localhost:8000" env:"BIBLE_API_URL" help:"Base URL of the Bible study API"`
	Credentials string `name:"credentials" default:"credentials.db" env:"CREDENTIALS_PATH" help:"Path to the credential store" type:"path"`
	Verbose     bool   `short:"v" help:"Enable debug logging"`

	Search       SearchCmd       `cmd:"" help:"Semantic search with streamed AI commentary"`
	Verse        VerseCmd        `cmd:"" help:"Look up a single verse"`
	Translations TranslationsCmd `cmd:"" help:"List available translations"`
	Books        BooksCmd        `cmd:"" help:"List Bible books"`
	Key          KeyCmd          `cmd:"" help:"Manage stored provider API keys"`
}

type SearchCmd struct {
	Query        string   `arg:"" help:"Natural language query"`
	Translations []string `short:"t" default:"NIV" help:"Translation abbreviations"`
	Languages    []string `short:"l" default:"en" help:"Language codes"`
	MaxResults   int      `short:"n" default:"10" help:"Maximum results"`
	Original     bool     `help:"Include original language data"`
	NoStream     bool     `help:"Use the non-streaming search path"`
}

type VerseCmd struct {
	Book         string   `arg:"" help:"Book name or abbreviation"`
	Chapter      int      `arg:"" help:"Chapter number"`
	Verse        int      `arg:"" help:"Verse number"`
	Translations []string `short:"t" default:"NIV" help:"Translation abbreviations"`
	Original     bool     `help:"Include original language data"`
}

type TranslationsCmd struct {
	Language string `short:"l" help:"Filter by language code"`
}

type BooksCmd struct {
	Testament string `help:"Filter by testament (OT or NT)"`
	Genre     string `help:"Filter by genre"`
}

type KeyCmd struct {
	Set    KeySetCmd    `cmd:"" help:"Store an API key for a provider"`
	Remove KeyRemoveCmd `cmd:"" help:"Remove a stored API key"`
}

type KeySetCmd struct {
	Provider string `arg:"" help:"Provider name (gemini or groq)"`
	Key      string `arg:"" help:"API key value"`
}

type KeyRemoveCmd struct {
	Provider string `arg:"" help:"Provider name (gemini or groq)"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("biblecli"),
		kong.Description("Multilingual Bible study from the terminal."),
		kong.UsageOnError(),
	)

	if CLI.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	store, err := credentials.Open(CLI.Credentials)
	if err != nil {
		kctx.FatalIfErrorf(err)
	}
	defer store.Close()

	client := bibleapi.NewClient(CLI.APIURL, store, 30*time.Second, 90*time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kctx.FatalIfErrorf(run(ctx, kctx.Command(), client, store))
}

func run(ctx context.Context, command string, client *bibleapi.Client, store *credentials.Store) error {
	switch {
	case strings.HasPrefix(command, "search"):
		return runSearch(ctx, client)
	case strings.HasPrefix(command, "verse"):
		return runVerse(ctx, client)
	case strings.HasPrefix(command, "translations"):
		return runTranslations(ctx, client)
	case strings.HasPrefix(command, "books"):
		return runBooks(ctx, client)
	case strings.HasPrefix(command, "key set"):
		return store.Set(CLI.Key.Set.Provider, CLI.Key.Set.Key)
	case strings.HasPrefix(command, "key remove"):
		return store.Remove(CLI.Key.Remove.Provider)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runSearch(ctx context.Context, client *bibleapi.Client) error {
	req := &bible.SearchRequest{
		Query:           CLI.Search.Query,
		Languages:       CLI.Search.Languages,
		Translations:    CLI.Search.Translations,
		MaxResults:      CLI.Search.MaxResults,
		IncludeOriginal: CLI.Search.Original,
	}

	if CLI.Search.NoStream {
		resp, err := client.Search(ctx, req)
		if err != nil {
			return err
		}
		printResults(resp)
		if resp.AIResponse != "" {
			fmt.Printf("\n%s\n", resp.AIResponse)
		}
		return nil
	}

	tokensSeen := false
	err := client.StreamSearch(ctx, req, func(event bible.StreamEvent) error {
		switch event.Type {
		case bible.StreamTypeResults:
			printResults(event.Results)
		case bible.StreamTypeToken:
			tokensSeen = true
			fmt.Print(event.Token)
		case bible.StreamTypeError:
			fmt.Fprintf(os.Stderr, "\nserver error: %s\n", event.Err)
		}
		return nil
	})
	if tokensSeen {
		fmt.Println()
	}
	return err
}

func printResults(resp *bible.SearchResponse) {
	fmt.Printf("%d results (%dms)\n\n", resp.SearchMetadata.TotalResults, resp.QueryTimeMs)
	for _, result := range resp.Results {
		ref := result.Reference
		fmt.Printf("  %s %d:%d", ref.Book, ref.Chapter, ref.Verse)
		for abbrev, text := range result.Translations {
			fmt.Printf("\n    [%s] %s", abbrev, text)
		}
		fmt.Printf("\n    relevance %.3f\n\n", result.RelevanceScore)
	}
}

func runVerse(ctx context.Context, client *bibleapi.Client) error {
	detail, err := client.GetVerse(ctx, CLI.Verse.Book, CLI.Verse.Chapter, CLI.Verse.Verse, CLI.Verse.Translations, CLI.Verse.Original)
	if err != nil {
		return err
	}

	ref := detail.Reference
	fmt.Printf("%s %d:%d\n", ref.Book, ref.Chapter, ref.Verse)
	for abbrev, text := range detail.Translations {
		fmt.Printf("  [%s] %s\n", abbrev, text)
	}
	for _, xref := range detail.CrossReferences {
		fmt.Printf("  see also %s %d:%d (%s)\n", xref.Book, xref.Chapter, xref.Verse, xref.Relation)
	}
	return nil
}

func runTranslations(ctx context.Context, client *bibleapi.Client) error {
	resp, err := client.ListTranslations(ctx, CLI.Translations.Language)
	if err != nil {
		return err
	}

	for _, trans := range resp.Translations {
		fmt.Printf("%-8s %-10s %s\n", trans.Abbreviation, trans.LanguageCode, trans.Name)
	}
	fmt.Printf("%d translations\n", resp.TotalCount)
	return nil
}

func runBooks(ctx context.Context, client *bibleapi.Client) error {
	resp, err := client.ListBooks(ctx, CLI.Books.Testament, CLI.Books.Genre)
	if err != nil {
		return err
	}

	for _, book := range resp.Books {
		fmt.Printf("%2d %-20s %-4s %s\n", book.BookNumber, book.Name, book.Testament, book.Genre)
	}
	fmt.Printf("%d books\n", resp.TotalCount)
	return nil
}
