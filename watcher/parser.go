package watcher

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"effortsync/models"
)

var (
	weDirPattern      = regexp.MustCompile(`^(WE-\d{6}-[a-z0-9]{4})(_.*)?$`)
	legacyFilePattern = regexp.MustCompile(`^\d{2}\.\d{2}_.*\.md$`)
	ticketFilePattern = regexp.MustCompile(`^(TKT-\d{6}-\d{3})(_.*)?\.md$`)
)

var taskListMarkdown = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// frontmatter is the YAML header shared by work effort index files and
// ticket files.
type frontmatter struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Status      string `yaml:"status"`
	Created     string `yaml:"created"`
	Updated     string `yaml:"last_updated"`
	Description string `yaml:"description"`
}

// ParseRepo scans a repo directory for work effort records and returns
// everything it could resolve. Individual file failures are collected
// into errMsg; a partial result with a non-empty errMsg is normal and
// must not be treated as fatal by callers.
func ParseRepo(root string) (workEfforts []models.WorkEffort, stats models.Stats, errMsg string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, models.Stats{}, fmt.Sprintf("read %s: %v", root, err)
	}

	var problems []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir() && weDirPattern.MatchString(name):
			we, weProblems, ok := parseWorkEffortDir(filepath.Join(root, name), weDirPattern.FindStringSubmatch(name)[1])
			problems = append(problems, weProblems...)
			if !ok {
				continue
			}
			workEfforts = append(workEfforts, we)
		case !entry.IsDir() && legacyFilePattern.MatchString(name):
			we, err := parseLegacyFile(filepath.Join(root, name))
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			workEfforts = append(workEfforts, we)
		}
	}

	sort.Slice(workEfforts, func(i, j int) bool { return workEfforts[i].ID < workEfforts[j].ID })
	return workEfforts, models.ComputeStats(workEfforts), strings.Join(problems, "; ")
}

// parseWorkEffortDir reads a WE-YYMMDD-xxxx directory: the index file
// carries the record frontmatter, the tickets/ subdirectory one file
// per ticket. Checkbox tasks in the index body become tickets too, for
// records that keep tasks inline. A broken ticket file degrades the
// record instead of dropping it; only an unreadable index is fatal for
// the record (ok=false).
func parseWorkEffortDir(dir, weID string) (we models.WorkEffort, problems []string, ok bool) {
	indexPath, err := findIndexFile(dir, weID)
	if err != nil {
		return models.WorkEffort{}, []string{err.Error()}, false
	}
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return models.WorkEffort{}, []string{fmt.Sprintf("%s: %v", indexPath, err)}, false
	}
	front, body, err := splitFrontmatter(raw)
	if err != nil {
		return models.WorkEffort{}, []string{fmt.Sprintf("%s: %v", indexPath, err)}, false
	}

	we = models.WorkEffort{
		ID:      front.ID,
		Title:   front.Title,
		Status:  normalizeWorkEffortStatus(front.Status),
		Created: parseTimestamp(front.Created),
		Updated: parseTimestamp(front.Updated),
	}
	if we.ID == "" {
		we.ID = weID
	}
	if we.Title == "" {
		we.Title = we.ID
	}

	we.Tickets = append(we.Tickets, extractTaskTickets(we.ID, body)...)

	ticketsDir := filepath.Join(dir, "tickets")
	ticketFiles, err := os.ReadDir(ticketsDir)
	if err == nil {
		for _, tf := range ticketFiles {
			m := ticketFilePattern.FindStringSubmatch(tf.Name())
			if tf.IsDir() || m == nil {
				continue
			}
			ticket, err := parseTicketFile(filepath.Join(ticketsDir, tf.Name()), m[1])
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", tf.Name(), err))
				continue
			}
			we.Tickets = append(we.Tickets, ticket)
		}
	}

	sort.Slice(we.Tickets, func(i, j int) bool { return we.Tickets[i].ID < we.Tickets[j].ID })
	return we, problems, true
}

func findIndexFile(dir, weID string) (string, error) {
	preferred := filepath.Join(dir, weID+"_index.md")
	if _, err := os.Stat(preferred); err == nil {
		return preferred, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*_index.md"))
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("%s: no index file", dir)
}

func parseTicketFile(path, ticketID string) (models.Ticket, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Ticket{}, err
	}
	front, _, err := splitFrontmatter(raw)
	if err != nil {
		return models.Ticket{}, err
	}
	t := models.Ticket{
		ID:          front.ID,
		Title:       front.Title,
		Status:      normalizeTicketStatus(front.Status),
		Description: front.Description,
	}
	if t.ID == "" {
		t.ID = ticketID
	}
	if t.Title == "" {
		t.Title = t.ID
	}
	return t, nil
}

// parseLegacyFile handles the flat XX.XX_name.md layout that predates
// per-effort directories: one file, frontmatter plus inline checkbox
// tasks.
func parseLegacyFile(path string) (models.WorkEffort, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.WorkEffort{}, fmt.Errorf("%s: %v", path, err)
	}
	front, body, err := splitFrontmatter(raw)
	if err != nil {
		return models.WorkEffort{}, fmt.Errorf("%s: %v", path, err)
	}
	we := models.WorkEffort{
		ID:      front.ID,
		Title:   front.Title,
		Status:  normalizeWorkEffortStatus(front.Status),
		Created: parseTimestamp(front.Created),
		Updated: parseTimestamp(front.Updated),
	}
	if we.ID == "" {
		we.ID = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	if we.Title == "" {
		we.Title = we.ID
	}
	we.Tickets = extractTaskTickets(we.ID, body)
	return we, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
func splitFrontmatter(raw []byte) (frontmatter, []byte, error) {
	var front frontmatter
	if !bytes.HasPrefix(raw, []byte("---")) {
		return front, raw, fmt.Errorf("missing frontmatter")
	}
	rest := raw[3:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return front, raw, fmt.Errorf("unterminated frontmatter")
	}
	header := rest[:end]
	body := rest[end+4:]
	if err := yaml.Unmarshal(header, &front); err != nil {
		return front, body, fmt.Errorf("frontmatter: %v", err)
	}
	return front, body, nil
}

// extractTaskTickets walks the markdown AST and turns task list items
// ("- [ ] ..." / "- [x] ...") into tickets. IDs are derived from the
// parent work effort and the item's position, which keeps them stable
// for unchanged documents.
func extractTaskTickets(weID string, body []byte) []models.Ticket {
	doc := taskListMarkdown.Parser().Parse(text.NewReader(body))
	var tickets []models.Ticket
	n := 0
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		checkbox, ok := node.(*east.TaskCheckBox)
		if !ok {
			return ast.WalkContinue, nil
		}
		n++
		status := models.TicketPending
		if checkbox.IsChecked {
			status = models.TicketCompleted
		}
		tickets = append(tickets, models.Ticket{
			ID:     fmt.Sprintf("%s-task-%03d", weID, n),
			Title:  taskText(checkbox, body),
			Status: status,
		})
		return ast.WalkContinue, nil
	})
	return tickets
}

// taskText collects the text of the paragraph holding the checkbox.
func taskText(checkbox *east.TaskCheckBox, source []byte) string {
	parent := checkbox.Parent()
	if parent == nil {
		return ""
	}
	var sb strings.Builder
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp is lenient: records are edited by hand and date
// formats drift. An unparseable value yields the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func normalizeWorkEffortStatus(s string) models.WorkEffortStatus {
	status := models.WorkEffortStatus(strings.ToLower(strings.TrimSpace(s)))
	if status.Valid() {
		return status
	}
	return models.WorkEffortPending
}

func normalizeTicketStatus(s string) models.TicketStatus {
	status := models.TicketStatus(strings.ToLower(strings.TrimSpace(s)))
	if status.Valid() {
		return status
	}
	return models.TicketPending
}
