// Package notion wraps the Notion API for AuditLife document operations.
//
// It lists candidate summary pages under a configured parent, creates new
// pages, appends summary paragraphs, and persists extracted facts as rows of a
// Notion database. All calls are single-attempt; there is no automatic retry.
package notion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/auditlife/auditlife/internal/models"
	"github.com/jomei/notionapi"
)

// Constants for Notion API interaction.
const (
	// MaxListPageSize is the maximum page size accepted by the children listing endpoint.
	MaxListPageSize = 100
	// MaxRichTextLength is the Notion limit for a single rich text content value.
	MaxRichTextLength = 2000
)

// Default property names of the facts database. Each must match the exact
// property name in the configured Notion database.
const (
	DefaultSubjectProperty    = "Subject"
	DefaultPredicateProperty  = "Predicate"
	DefaultObjectProperty     = "Object"
	DefaultContextProperty    = "Context"
	DefaultSourceTextProperty = "Source Text"
)

// blockService defines the minimal block operations the resolver needs.
type blockService interface {
	GetChildren(ctx context.Context, id notionapi.BlockID, pagination *notionapi.Pagination) (*notionapi.GetChildrenResponse, error)
	AppendChildren(ctx context.Context, id notionapi.BlockID, request *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error)
}

// pageService defines the minimal page operations the resolver needs.
type pageService interface {
	Create(ctx context.Context, request *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// Opts holds configuration options for the resolver.
type Opts struct {
	Token              string
	SummaryParentID    string // page whose child pages are candidate destinations
	FactsDatabaseID    string // database receiving one row per fact
	SubjectProperty    string
	PredicateProperty  string
	ObjectProperty     string
	ContextProperty    string
	SourceTextProperty string
}

// Option defines a configuration option for the resolver.
type Option func(*Opts)

// WithToken sets the Notion integration token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithSummaryParentID sets the parent page holding candidate summary pages.
func WithSummaryParentID(id string) Option {
	return func(o *Opts) { o.SummaryParentID = id }
}

// WithFactsDatabaseID sets the database receiving extracted facts.
func WithFactsDatabaseID(id string) Option {
	return func(o *Opts) { o.FactsDatabaseID = id }
}

// WithFactProperties overrides the property names of the facts database.
func WithFactProperties(subject, predicate, object, context, sourceText string) Option {
	return func(o *Opts) {
		o.SubjectProperty = subject
		o.PredicateProperty = predicate
		o.ObjectProperty = object
		o.ContextProperty = context
		o.SourceTextProperty = sourceText
	}
}

// Resolver performs document operations against the Notion API.
type Resolver struct {
	block   blockService
	page    pageService
	parent  string
	factsDB string
	props   Opts
}

// NewResolver creates a resolver from the given options. Token, summary parent
// id and facts database id are required.
func NewResolver(opts ...Option) (*Resolver, error) {
	cfg := Opts{
		SubjectProperty:    DefaultSubjectProperty,
		PredicateProperty:  DefaultPredicateProperty,
		ObjectProperty:     DefaultObjectProperty,
		ContextProperty:    DefaultContextProperty,
		SourceTextProperty: DefaultSourceTextProperty,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("notion token not set")
	}
	if cfg.SummaryParentID == "" {
		return nil, fmt.Errorf("notion summary parent id not set")
	}
	if cfg.FactsDatabaseID == "" {
		return nil, fmt.Errorf("notion facts database id not set")
	}
	client := notionapi.NewClient(notionapi.Token(cfg.Token))
	slog.Debug("Notion resolver created", "parent_set", cfg.SummaryParentID != "", "factsDB_set", cfg.FactsDatabaseID != "")
	return &Resolver{
		block:   client.Block,
		page:    client.Page,
		parent:  cfg.SummaryParentID,
		factsDB: cfg.FactsDatabaseID,
		props:   cfg,
	}, nil
}

// ListPages pages through the children of the summary parent and returns the
// child pages as candidate documents, sorted by title case-insensitively in
// ascending order. Non-page blocks are discarded. A backend error anywhere in
// the pagination is returned as an error so callers can tell a failed listing
// apart from a parent that genuinely has no child pages.
func (r *Resolver) ListPages(ctx context.Context) ([]models.DocumentRef, error) {
	slog.Debug("Notion ListPages invoked", "parent", r.parent)
	var pages []models.DocumentRef
	var cursor notionapi.Cursor

	for {
		resp, err := r.block.GetChildren(ctx, notionapi.BlockID(r.parent), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    MaxListPageSize,
		})
		if err != nil {
			slog.Error("Notion ListPages failed", "error", err, "parent", r.parent)
			return nil, fmt.Errorf("failed to list children of %s: %w", r.parent, err)
		}

		for _, block := range resp.Results {
			child, ok := block.(*notionapi.ChildPageBlock)
			if !ok || block.GetType() != notionapi.BlockTypeChildPage {
				continue
			}
			title := child.ChildPage.Title
			if title == "" {
				title = "Untitled"
			}
			pages = append(pages, models.DocumentRef{ID: string(child.GetID()), Title: title})
		}

		if !resp.HasMore {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}

	// Sorting here is depended upon by the orchestrator's suggestion rule:
	// the first candidate after the case-insensitive ascending sort is suggested.
	sort.SliceStable(pages, func(i, j int) bool {
		return strings.ToLower(pages[i].Title) < strings.ToLower(pages[j].Title)
	})

	slog.Info("Notion ListPages succeeded", "count", len(pages))
	return pages, nil
}

// CreatePage creates a new page with the given title under the summary parent,
// seeding its body with an initial paragraph.
func (r *Resolver) CreatePage(ctx context.Context, title, initialBody string) (models.DocumentRef, error) {
	slog.Debug("Notion CreatePage invoked", "title", title)
	page, err := r.page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(r.parent),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
			},
		},
		Children: []notionapi.Block{paragraph(initialBody)},
	})
	if err != nil {
		slog.Error("Notion CreatePage failed", "error", err, "title", title)
		return models.DocumentRef{}, fmt.Errorf("failed to create page %q: %w", title, err)
	}
	slog.Info("Notion CreatePage succeeded", "id", page.ID, "title", title)
	return models.DocumentRef{ID: string(page.ID), Title: title}, nil
}

// AppendToPage appends text as a new paragraph block to an existing page.
func (r *Resolver) AppendToPage(ctx context.Context, pageID, text string) error {
	slog.Debug("Notion AppendToPage invoked", "pageID", pageID)
	_, err := r.block.AppendChildren(ctx, notionapi.BlockID(pageID), &notionapi.AppendBlockChildrenRequest{
		Children: []notionapi.Block{paragraph(text)},
	})
	if err != nil {
		slog.Error("Notion AppendToPage failed", "error", err, "pageID", pageID)
		return fmt.Errorf("failed to append to page %s: %w", pageID, err)
	}
	slog.Info("Notion AppendToPage succeeded", "pageID", pageID)
	return nil
}

// AddFacts writes each fact as an independent row of the facts database. A
// failure on one fact does not abort the remaining writes. The return value is
// the logical AND of all per-fact outcomes; which facts failed is only logged,
// not reported to the caller.
func (r *Resolver) AddFacts(ctx context.Context, facts []models.Fact, sourceText string) bool {
	if len(facts) == 0 {
		slog.Debug("Notion AddFacts: no facts provided")
		return true
	}
	slog.Info("Notion AddFacts invoked", "count", len(facts))

	success := true
	for _, fact := range facts {
		properties := notionapi.Properties{
			r.props.SubjectProperty: notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: fact.Subject}}},
			},
			r.props.PredicateProperty: notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: fact.Predicate}}},
			},
			r.props.ObjectProperty: notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: fact.Object}}},
			},
		}
		if fact.Context != "" {
			properties[r.props.ContextProperty] = notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: fact.Context}}},
			}
		}
		if sourceText != "" {
			properties[r.props.SourceTextProperty] = notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: truncate(sourceText)}}},
			}
		}

		_, err := r.page.Create(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(r.factsDB),
			},
			Properties: properties,
		})
		if err != nil {
			slog.Error("Notion AddFacts row failed", "error", err,
				"subject", fact.Subject, "predicate", fact.Predicate, "object", fact.Object)
			success = false
			continue
		}
		slog.Debug("Notion AddFacts row succeeded", "subject", fact.Subject, "predicate", fact.Predicate)
	}

	slog.Info("Notion AddFacts finished", "success", success)
	return success
}

// paragraph builds a single paragraph block holding the given text.
func paragraph(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: text}}},
		},
	}
}

// truncate shortens text to the Notion rich text limit.
func truncate(text string) string {
	if len(text) <= MaxRichTextLength {
		return text
	}
	return text[:MaxRichTextLength-10] + "..."
}
