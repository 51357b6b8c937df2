// Package pipeline 提供训练数据清洗
package pipeline

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Row 一条带标签的文本记录，Line为源文件中的行号
type Row struct {
	Line  int
	Text  string
	Label string
}

// CleaningRule 清洗规则，返回错误表示拒绝该行
type CleaningRule interface {
	Apply(*Row) (*Row, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Rule    string `json:"rule"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Corrected      int            `json:"corrected"`
	Issues         map[string]int `json:"issues"`
}

// DataCleaner 数据清洗器，规则可能有状态，每个数据集使用一个新实例
type DataCleaner struct {
	rules []CleaningRule
	stats CleaningStats
}

// NewDataCleaner 创建带默认规则的清洗器，maxTextRunes<=0表示不限制长度
func NewDataCleaner(maxTextRunes int) *DataCleaner {
	cleaner := &DataCleaner{
		stats: CleaningStats{Issues: make(map[string]int)},
	}

	// 顺序有意义：先规整文本，再校验与去重
	cleaner.AddRule(NewControlCharRule())
	cleaner.AddRule(NewWhitespaceRule())
	cleaner.AddRule(NewRequiredFieldsRule())
	if maxTextRunes > 0 {
		cleaner.AddRule(NewTextLengthRule(maxTextRunes))
	}
	cleaner.AddRule(NewDuplicateDetectionRule())

	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean 清洗数据，一行的第一个错误即拒绝该行
func (dc *DataCleaner) Clean(rows []*Row) ([]*Row, []QualityIssue) {
	cleaned := make([]*Row, 0, len(rows))
	var issues []QualityIssue

	for _, row := range rows {
		dc.stats.TotalProcessed++

		original := *row
		current := row
		rejected := false

		for _, rule := range dc.rules {
			next, err := rule.Apply(current)
			if err != nil {
				issues = append(issues, QualityIssue{
					Rule:    rule.Name(),
					Line:    row.Line,
					Message: err.Error(),
				})
				dc.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
			if next != nil {
				current = next
			}
		}

		if rejected {
			dc.stats.Rejected++
			continue
		}
		if original != *current {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, current)
	}

	return cleaned, issues
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	stats := dc.stats
	stats.Issues = make(map[string]int, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// ============ 清洗规则实现 ============

// ControlCharRule 将控制字符替换为空格
type ControlCharRule struct{}

func NewControlCharRule() *ControlCharRule {
	return &ControlCharRule{}
}

func (r *ControlCharRule) Name() string {
	return "control_chars"
}

func (r *ControlCharRule) Apply(row *Row) (*Row, error) {
	replace := func(c rune) rune {
		if c == utf8.RuneError || (unicode.IsControl(c) && !unicode.IsSpace(c)) {
			return ' '
		}
		return c
	}
	out := *row
	out.Text = strings.Map(replace, row.Text)
	out.Label = strings.Map(replace, row.Label)
	return &out, nil
}

// WhitespaceRule 去除首尾空白并合并连续空白
type WhitespaceRule struct{}

func NewWhitespaceRule() *WhitespaceRule {
	return &WhitespaceRule{}
}

func (r *WhitespaceRule) Name() string {
	return "whitespace"
}

func (r *WhitespaceRule) Apply(row *Row) (*Row, error) {
	out := *row
	out.Text = strings.Join(strings.Fields(row.Text), " ")
	out.Label = strings.TrimSpace(row.Label)
	return &out, nil
}

// RequiredFieldsRule 文本与标签都不能为空
type RequiredFieldsRule struct{}

func NewRequiredFieldsRule() *RequiredFieldsRule {
	return &RequiredFieldsRule{}
}

func (r *RequiredFieldsRule) Name() string {
	return "required_fields"
}

func (r *RequiredFieldsRule) Apply(row *Row) (*Row, error) {
	switch {
	case row.Text == "":
		return nil, fmt.Errorf("line %d: empty text", row.Line)
	case row.Label == "":
		return nil, fmt.Errorf("line %d: empty label", row.Line)
	}
	return row, nil
}

// TextLengthRule 超长文本按字符截断
type TextLengthRule struct {
	MaxRunes int
}

func NewTextLengthRule(maxRunes int) *TextLengthRule {
	return &TextLengthRule{MaxRunes: maxRunes}
}

func (r *TextLengthRule) Name() string {
	return "text_length"
}

func (r *TextLengthRule) Apply(row *Row) (*Row, error) {
	if utf8.RuneCountInString(row.Text) <= r.MaxRunes {
		return row, nil
	}
	out := *row
	out.Text = string([]rune(row.Text)[:r.MaxRunes])
	return &out, nil
}

// DuplicateDetectionRule 拒绝文本与标签都重复的行
type DuplicateDetectionRule struct {
	seen map[string]int
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{
		seen: make(map[string]int),
	}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Apply(row *Row) (*Row, error) {
	key := row.Text + "\x00" + strings.ToLower(row.Label)
	if first, exists := r.seen[key]; exists {
		return nil, fmt.Errorf("line %d: duplicate of line %d", row.Line, first)
	}
	r.seen[key] = row.Line
	return row, nil
}
