package notion

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/auditlife/auditlife/internal/models"
	"github.com/jomei/notionapi"
)

func childPage(id, title string) notionapi.Block {
	block := &notionapi.ChildPageBlock{
		BasicBlock: notionapi.BasicBlock{
			ID:     notionapi.BlockID(id),
			Type:   notionapi.BlockTypeChildPage,
			Object: notionapi.ObjectTypeBlock,
		},
	}
	block.ChildPage.Title = title
	return block
}

func paragraphBlock(id string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			ID:     notionapi.BlockID(id),
			Type:   notionapi.BlockTypeParagraph,
			Object: notionapi.ObjectTypeBlock,
		},
	}
}

// mockBlockService serves GetChildren from a fixed sequence of pages, keyed by
// cursor position, and records AppendChildren calls.
type mockBlockService struct {
	pages      [][]notionapi.Block
	errAt      int // page index at which GetChildren fails; -1 disables
	appendErr  error
	appendedTo []string
}

func newMockBlockService(pages [][]notionapi.Block) *mockBlockService {
	return &mockBlockService{pages: pages, errAt: -1}
}

func (m *mockBlockService) GetChildren(ctx context.Context, id notionapi.BlockID, pagination *notionapi.Pagination) (*notionapi.GetChildrenResponse, error) {
	idx := 0
	if pagination != nil && pagination.StartCursor != "" {
		fmt.Sscanf(string(pagination.StartCursor), "cursor-%d", &idx)
	}
	if m.errAt >= 0 && idx == m.errAt {
		return nil, errors.New("backend unavailable")
	}
	if idx >= len(m.pages) {
		return &notionapi.GetChildrenResponse{HasMore: false}, nil
	}
	resp := &notionapi.GetChildrenResponse{Results: m.pages[idx]}
	if idx+1 < len(m.pages) {
		resp.HasMore = true
		resp.NextCursor = fmt.Sprintf("cursor-%d", idx+1)
	}
	return resp, nil
}

func (m *mockBlockService) AppendChildren(ctx context.Context, id notionapi.BlockID, request *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.appendedTo = append(m.appendedTo, string(id))
	return &notionapi.AppendBlockChildrenResponse{}, nil
}

// mockPageService records page creations and can fail selectively.
type mockPageService struct {
	created []*notionapi.PageCreateRequest
	failAt  map[int]bool // call indices (0-based) that fail
	err     error        // fail every call when set
}

func (m *mockPageService) Create(ctx context.Context, request *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	call := len(m.created)
	m.created = append(m.created, request)
	if m.err != nil {
		return nil, m.err
	}
	if m.failAt != nil && m.failAt[call] {
		return nil, errors.New("validation error")
	}
	return &notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("page-%d", call))}, nil
}

func newTestResolver(block blockService, page pageService) *Resolver {
	return &Resolver{
		block:   block,
		page:    page,
		parent:  "parent-id",
		factsDB: "facts-db",
		props: Opts{
			SubjectProperty:    DefaultSubjectProperty,
			PredicateProperty:  DefaultPredicateProperty,
			ObjectProperty:     DefaultObjectProperty,
			ContextProperty:    DefaultContextProperty,
			SourceTextProperty: DefaultSourceTextProperty,
		},
	}
}

func titles(refs []models.DocumentRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Title
	}
	return out
}

func TestListPages_SortsCaseInsensitively(t *testing.T) {
	blocks := []notionapi.Block{
		childPage("1", "Zebra"),
		childPage("2", "apple"),
		childPage("3", "Banana"),
	}
	resolver := newTestResolver(newMockBlockService([][]notionapi.Block{blocks}), &mockPageService{})
	pages, err := resolver.ListPages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"apple", "Banana", "Zebra"}
	if !reflect.DeepEqual(titles(pages), want) {
		t.Errorf("expected %v, got %v", want, titles(pages))
	}
}

func TestListPages_PageBoundaryInvariance(t *testing.T) {
	// Seven candidates split 3+3+1 must yield the same result as one page of 7.
	all := []notionapi.Block{
		childPage("1", "golf"),
		childPage("2", "Echo"),
		childPage("3", "alpha"),
		childPage("4", "Foxtrot"),
		childPage("5", "bravo"),
		childPage("6", "Delta"),
		childPage("7", "charlie"),
	}
	single := newTestResolver(newMockBlockService([][]notionapi.Block{all}), &mockPageService{})
	split := newTestResolver(newMockBlockService([][]notionapi.Block{all[0:3], all[3:6], all[6:7]}), &mockPageService{})

	fromSingle, err := single.ListPages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromSplit, err := split.ListPages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(fromSingle, fromSplit) {
		t.Errorf("page boundaries changed the result:\n single: %v\n split:  %v", fromSingle, fromSplit)
	}
	if len(fromSingle) != 7 {
		t.Errorf("expected 7 candidates, got %d", len(fromSingle))
	}
	if fromSingle[0].Title != "alpha" {
		t.Errorf("expected alpha first, got %s", fromSingle[0].Title)
	}
}

func TestListPages_FiltersNonPageBlocks(t *testing.T) {
	blocks := []notionapi.Block{
		paragraphBlock("p1"),
		childPage("1", "Journal"),
		paragraphBlock("p2"),
	}
	resolver := newTestResolver(newMockBlockService([][]notionapi.Block{blocks}), &mockPageService{})
	pages, err := resolver.ListPages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 || pages[0].Title != "Journal" {
		t.Errorf("expected only the child page, got %v", pages)
	}
}

func TestListPages_MidPaginationErrorPropagates(t *testing.T) {
	blocks := newMockBlockService([][]notionapi.Block{
		{childPage("1", "a")},
		{childPage("2", "b")},
	})
	blocks.errAt = 1
	resolver := newTestResolver(blocks, &mockPageService{})
	pages, err := resolver.ListPages(context.Background())
	if err == nil {
		t.Fatal("expected error from mid-pagination failure, got nil")
	}
	if pages != nil {
		t.Errorf("expected no partial result on error, got %v", pages)
	}
}

func TestCreatePage(t *testing.T) {
	pageSvc := &mockPageService{}
	resolver := newTestResolver(newMockBlockService(nil), pageSvc)
	ref, err := resolver.CreatePage(context.Background(), "New Page", "initial body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != "page-0" || ref.Title != "New Page" {
		t.Errorf("unexpected ref: %+v", ref)
	}
	if len(pageSvc.created) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(pageSvc.created))
	}
	req := pageSvc.created[0]
	if req.Parent.Type != notionapi.ParentTypePageID || string(req.Parent.PageID) != "parent-id" {
		t.Errorf("page created under wrong parent: %+v", req.Parent)
	}
	if len(req.Children) != 1 {
		t.Errorf("expected initial paragraph child, got %d children", len(req.Children))
	}
}

func TestAppendToPage(t *testing.T) {
	blockSvc := newMockBlockService(nil)
	resolver := newTestResolver(blockSvc, &mockPageService{})
	if err := resolver.AppendToPage(context.Background(), "page-9", "summary text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blockSvc.appendedTo) != 1 || blockSvc.appendedTo[0] != "page-9" {
		t.Errorf("expected append to page-9, got %v", blockSvc.appendedTo)
	}

	blockSvc.appendErr = errors.New("not found")
	if err := resolver.AppendToPage(context.Background(), "page-9", "summary text"); err == nil {
		t.Error("expected error from append failure")
	}
}

func TestAddFacts_AggregateOutcome(t *testing.T) {
	facts := []models.Fact{
		{Subject: "I", Predicate: "met", Object: "Alice"},
		{Subject: "I", Predicate: "met", Object: "Bob"},
		{Subject: "I", Predicate: "met", Object: "Carol"},
	}

	// All writes succeed.
	pageSvc := &mockPageService{}
	resolver := newTestResolver(newMockBlockService(nil), pageSvc)
	if ok := resolver.AddFacts(context.Background(), facts, "source"); !ok {
		t.Error("expected aggregate success")
	}
	if len(pageSvc.created) != 3 {
		t.Errorf("expected 3 fact writes, got %d", len(pageSvc.created))
	}

	// One failure flips the aggregate but does not abort sibling writes.
	pageSvc = &mockPageService{failAt: map[int]bool{1: true}}
	resolver = newTestResolver(newMockBlockService(nil), pageSvc)
	if ok := resolver.AddFacts(context.Background(), facts, "source"); ok {
		t.Error("expected aggregate failure when one write fails")
	}
	if len(pageSvc.created) != 3 {
		t.Errorf("a per-fact failure must not abort the remaining writes; got %d attempts", len(pageSvc.created))
	}
}

func TestAddFacts_EmptyList(t *testing.T) {
	pageSvc := &mockPageService{err: errors.New("must not be called")}
	resolver := newTestResolver(newMockBlockService(nil), pageSvc)
	if ok := resolver.AddFacts(context.Background(), nil, "source"); !ok {
		t.Error("empty fact list is a success")
	}
	if len(pageSvc.created) != 0 {
		t.Errorf("expected no writes for empty fact list, got %d", len(pageSvc.created))
	}
}

func TestAddFacts_TruncatesSourceText(t *testing.T) {
	long := make([]byte, MaxRichTextLength+500)
	for i := range long {
		long[i] = 'x'
	}
	pageSvc := &mockPageService{}
	resolver := newTestResolver(newMockBlockService(nil), pageSvc)
	resolver.AddFacts(context.Background(), []models.Fact{{Subject: "a", Predicate: "b", Object: "c"}}, string(long))

	prop, ok := pageSvc.created[0].Properties[DefaultSourceTextProperty].(notionapi.RichTextProperty)
	if !ok {
		t.Fatal("source text property missing")
	}
	content := prop.RichText[0].Text.Content
	if len(content) > MaxRichTextLength {
		t.Errorf("source text not truncated: %d chars", len(content))
	}
}
