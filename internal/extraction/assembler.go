// Package extraction 负责把 PDF/纯文本转换成带坐标的视觉行，并做第一轮换行合并。
package extraction

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"cvision/internal/types"
)

// DefaultLineYThreshold 同一行内 top 的最大偏差
const DefaultLineYThreshold = 3.0

// AssembleLines 按 (page, top, x0) 排序后按垂直位置聚合为行。
// 行的锚点是该行第一个词的 top，偏差超过 yThreshold 则另起一行。
// 每个输入词恰好出现在一行中。
func AssembleLines(words []types.Word, yThreshold float64) []types.Line {
	if len(words) == 0 {
		return nil
	}
	if yThreshold <= 0 {
		yThreshold = DefaultLineYThreshold
	}

	sorted := make([]types.Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.X0 < b.X0
	})

	var (
		lines  []types.Line
		bucket []types.Word
		anchor float64
	)
	flush := func() {
		if len(bucket) == 0 {
			return
		}
		lines = append(lines, finalizeLine(bucket, len(lines)))
		bucket = nil
	}

	for _, w := range sorted {
		if len(bucket) > 0 && (w.Page != bucket[0].Page || math.Abs(w.Top-anchor) > yThreshold) {
			flush()
		}
		if len(bucket) == 0 {
			anchor = w.Top
		}
		bucket = append(bucket, w)
	}
	flush()
	return lines
}

func finalizeLine(words []types.Word, idx int) types.Line {
	sort.SliceStable(words, func(i, j int) bool { return words[i].X0 < words[j].X0 })

	texts := make([]string, len(words))
	line := types.Line{
		LineID: "l" + strconv.Itoa(idx),
		Page:   words[0].Page,
		X0:     words[0].X0,
		X1:     words[0].X1,
		Top:    words[0].Top,
		Bottom: words[0].Bottom,
	}
	for i, w := range words {
		texts[i] = w.Text
		line.X0 = math.Min(line.X0, w.X0)
		line.X1 = math.Max(line.X1, w.X1)
		line.Top = math.Min(line.Top, w.Top)
		line.Bottom = math.Max(line.Bottom, w.Bottom)
	}
	line.Text = strings.TrimSpace(strings.Join(texts, " "))
	return line
}
