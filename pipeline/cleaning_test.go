package pipeline

import (
	"strings"
	"testing"
)

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(0)
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}
	if len(cleaner.rules) != 4 {
		t.Errorf("expected 4 default rules without a length limit, got %d", len(cleaner.rules))
	}
	if got := len(NewDataCleaner(100).rules); got != 5 {
		t.Errorf("expected 5 rules with a length limit, got %d", got)
	}
}

func TestRequiredFieldsRule(t *testing.T) {
	rule := NewRequiredFieldsRule()

	tests := []struct {
		name    string
		row     *Row
		wantErr bool
	}{
		{name: "complete row", row: &Row{Line: 2, Text: "good", Label: "positive"}},
		{name: "empty text", row: &Row{Line: 3, Label: "positive"}, wantErr: true},
		{name: "empty label", row: &Row{Line: 4, Text: "good"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rule.Apply(tt.row)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequiredFieldsRule.Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTextNormalizingRules(t *testing.T) {
	tests := []struct {
		name string
		rule CleaningRule
		in   Row
		want Row
	}{
		{
			name: "control characters become spaces",
			rule: NewControlCharRule(),
			in:   Row{Text: "bad\x00product\x1b", Label: "neg\x07"},
			want: Row{Text: "bad product ", Label: "neg "},
		},
		{
			name: "whitespace collapsed",
			rule: NewWhitespaceRule(),
			in:   Row{Text: "  really \t\n good  ", Label: " positive "},
			want: Row{Text: "really good", Label: "positive"},
		},
		{
			name: "long text truncated by runes",
			rule: NewTextLengthRule(4),
			in:   Row{Text: "héllo world", Label: "neutral"},
			want: Row{Text: "héll", Label: "neutral"},
		},
		{
			name: "short text untouched",
			rule: NewTextLengthRule(40),
			in:   Row{Text: "fine", Label: "neutral"},
			want: Row{Text: "fine", Label: "neutral"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			got, err := tt.rule.Apply(&in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDuplicateDetectionRule(t *testing.T) {
	rule := NewDuplicateDetectionRule()

	if _, err := rule.Apply(&Row{Line: 2, Text: "ok", Label: "Neutral"}); err != nil {
		t.Fatalf("first row rejected: %v", err)
	}
	if _, err := rule.Apply(&Row{Line: 3, Text: "ok", Label: "positive"}); err != nil {
		t.Errorf("same text with another label should pass: %v", err)
	}
	_, err := rule.Apply(&Row{Line: 7, Text: "ok", Label: "neutral"})
	if err == nil || !strings.Contains(err.Error(), "duplicate of line 2") {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestDataCleaner_Clean(t *testing.T) {
	cleaner := NewDataCleaner(0)

	rows := []*Row{
		{Line: 2, Text: "great   product", Label: "positive"},
		{Line: 3, Text: "", Label: "negative"},
		{Line: 4, Text: "awful", Label: "negative"},
		{Line: 5, Text: " great product ", Label: "positive"},
		{Line: 6, Text: "the box", Label: ""},
	}

	cleaned, issues := cleaner.Clean(rows)

	if len(cleaned) != 2 {
		t.Fatalf("expected 2 cleaned rows, got %d", len(cleaned))
	}
	if cleaned[0].Text != "great product" || cleaned[1].Text != "awful" {
		t.Errorf("unexpected cleaned rows: %+v %+v", cleaned[0], cleaned[1])
	}
	if len(issues) != 3 {
		t.Errorf("expected 3 issues, got %d", len(issues))
	}

	stats := cleaner.GetStats()
	if stats.TotalProcessed != 5 || stats.Passed != 2 || stats.Rejected != 3 || stats.Corrected != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Issues["required_fields"] != 2 || stats.Issues["duplicate_detection"] != 1 {
		t.Errorf("unexpected issue counts: %v", stats.Issues)
	}
}
