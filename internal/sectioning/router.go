package sectioning

import (
	"cvision/internal/types"
)

// DefaultPageMidX 双栏复合标题的分界线
const DefaultPageMidX = 300.0

// RouterState 路由状态：当前生效的章节列表。每次切换都是新切片
type RouterState struct {
	Sections []types.Section
}

// NewRouterState 初始状态为 [profile]
func NewRouterState() RouterState {
	return RouterState{Sections: []types.Section{types.SectionProfile}}
}

// Router 把每一行分配到章节
type Router struct {
	detector *HeaderDetector
	pageMidX float64
}

// RouterOption 路由器配置项
type RouterOption func(*Router)

// WithPageMidX 设置分栏位置
func WithPageMidX(x float64) RouterOption {
	return func(r *Router) {
		if x > 0 {
			r.pageMidX = x
		}
	}
}

// WithKeywordTable 替换关键词表
func WithKeywordTable(table KeywordTable) RouterOption {
	return func(r *Router) {
		r.detector = NewHeaderDetector(table)
	}
}

// NewRouter 创建路由器
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		detector: NewHeaderDetector(DefaultKeywordTable),
		pageMidX: DefaultPageMidX,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route 纯函数：根据状态给一行分配章节，返回新状态。
// 识别不出章节时沿用当前章节列表：已被标记的标题行仍是标题，
// 仅凭全大写推断的行（姓名、公司名、技能列表）按普通内容路由。
func (r *Router) Route(state RouterState, line types.Line) (RouterState, types.Line) {
	if len(state.Sections) == 0 {
		state = NewRouterState()
	}

	if LooksLikeHeader(line) {
		detected := r.detector.Detect(line.Text)
		if len(detected) > 0 {
			state = RouterState{Sections: detected}
		}
		if len(detected) > 0 || line.IsSectionHeader {
			line.IsSectionHeader = true
			line.Section = state.Sections[0]
			return state, line
		}
	}

	switch {
	case len(state.Sections) == 1 || line.X0 < r.pageMidX:
		line.Section = state.Sections[0]
	default:
		line.Section = state.Sections[1]
	}
	return state, line
}

// AssignSections 从初始状态开始依次路由
func (r *Router) AssignSections(lines []types.Line) []types.Line {
	out := make([]types.Line, len(lines))
	state := NewRouterState()
	for i, l := range lines {
		state, out[i] = r.Route(state, l)
	}
	return out
}
