package fundboard

import (
	"fmt"
	"strings"
)

const (
	analysisPersona   = "请作为一位专业的基金分析师，分析以下基金："
	analysisDirective = `**分析要求**:
1. 评估该基金近期的表现和风险。
2. 结合新闻信息，分析市场情绪对该基金的影响。
3. 给出简短的投资建议（持有/观望/买入/卖出）并说明理由。
请使用 Markdown 格式输出，重点突出关键信息。`
)

// FundAnalysisInput is everything the analysis prompt is built from.
type FundAnalysisInput struct {
	FundName string
	FundCode string
	Metrics  *FundMetrics
	News     []NewsItem
}

// ComposeFundAnalysisPrompt renders the analyst prompt. It is pure: equal
// inputs give byte-identical output. Missing metrics render as "---"; the news
// section header is always present, with no lines when there is no news.
func ComposeFundAnalysisPrompt(in FundAnalysisInput) string {
	m := in.Metrics
	if m == nil {
		m = &FundMetrics{}
	}

	var sb strings.Builder
	sb.WriteString(analysisPersona)
	sb.WriteString("\n**基本信息**:\n")
	fmt.Fprintf(&sb, "- 名称: %s (%s)\n", in.FundName, in.FundCode)
	fmt.Fprintf(&sb, "- 经理: %s\n", orPlaceholder(m.Manager))
	fmt.Fprintf(&sb, "- 规模: %s\n", orPlaceholder(m.Size))
	fmt.Fprintf(&sb, "- 评级: %s\n", orPlaceholder(m.Rating))
	fmt.Fprintf(&sb, "- 最新净值: %s (日期: %s)\n", amountOrPlaceholder(m.LatestNAV, ""), orPlaceholder(m.NAVDate))
	fmt.Fprintf(&sb, "- 日增长率: %s\n", amountOrPlaceholder(m.DailyGrowth, "%"))

	sb.WriteString("\n**近期相关新闻/观点**:\n")
	sb.WriteString(renderNewsSection(in.News))
	sb.WriteString("\n\n")
	sb.WriteString(analysisDirective)
	sb.WriteString("\n")
	return sb.String()
}

func renderNewsSection(items []NewsItem) string {
	lines := make([]string, 0, len(items))
	for i, n := range items {
		lines = append(lines, fmt.Sprintf("%d. [%s](%s): %s", i+1, n.Title, n.URL, n.Content))
	}
	return strings.Join(lines, "\n")
}

func orPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}

// composeSentimentPrompt lists market headlines for the sentiment analyst.
func composeSentimentPrompt(items []NewsItem) string {
	var sb strings.Builder
	sb.WriteString("以下是最新的 A 股市场新闻与宏观观点：\n")
	if len(items) == 0 {
		sb.WriteString("（暂无可用新闻，请基于你掌握的信息谨慎判断，并说明数据局限。）\n")
	} else {
		sb.WriteString(renderNewsSection(items))
		sb.WriteString("\n")
	}
	sb.WriteString("\n请据此分析当前市场情绪（乐观/中性/悲观）、主要驱动因素与潜在风险，并使用 Markdown 格式输出。\n")
	return sb.String()
}

func amountOrPlaceholder(a *Amount, unit string) string {
	if a == nil {
		return placeholder
	}
	return a.String() + unit
}
