package context

import (
	"sort"

	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// ToolPair is a matched tool_use block and its tool_result block. Pairs are
// atomic under truncation.
type ToolPair struct {
	ToolID        string `json:"tool_id"`
	UseMessage    int    `json:"use_message_index"`
	UseBlock      int    `json:"use_block_index"`
	ResultMessage int    `json:"result_message_index"`
	ResultBlock   int    `json:"result_block_index"`
	ToolName      string `json:"tool_name"`
	Complete      bool   `json:"is_complete"`
}

// BlockRef locates an unmatched tool block.
type BlockRef struct {
	Message  int    `json:"message_index"`
	Block    int    `json:"block_index"`
	ToolID   string `json:"tool_id"`
	ToolName string `json:"tool_name,omitempty"`
}

// PairAnalysis is the result of scanning a message sequence for tool pairs.
type PairAnalysis struct {
	Pairs         []ToolPair `json:"pairs"`
	OrphanUses    []BlockRef `json:"orphan_uses,omitempty"`
	OrphanResults []BlockRef `json:"orphan_results,omitempty"`

	linked map[int]map[int]bool
}

// AnalyzeToolPairs scans messages in two passes: first indexing tool_use and
// tool_result blocks by tool id, then matching them into pairs and recording
// orphans.
func AnalyzeToolPairs(messages []qmodels.ContextMessage) *PairAnalysis {
	type useRef struct {
		msg, block int
		name       string
	}
	type resultRef struct {
		msg, block int
	}

	useMap := make(map[string]useRef)
	resultMap := make(map[string]resultRef)
	var useOrder []string

	for mi := range messages {
		for bi, b := range messages[mi].Blocks {
			switch b.Type {
			case qmodels.BlockToolUse:
				if b.ToolID == "" {
					continue
				}
				if _, exists := useMap[b.ToolID]; !exists {
					useOrder = append(useOrder, b.ToolID)
				}
				useMap[b.ToolID] = useRef{msg: mi, block: bi, name: b.ToolName}
			case qmodels.BlockToolResult:
				if b.ToolID == "" {
					continue
				}
				resultMap[b.ToolID] = resultRef{msg: mi, block: bi}
			}
		}
	}

	analysis := &PairAnalysis{linked: make(map[int]map[int]bool)}
	matched := make(map[string]bool)

	for _, id := range useOrder {
		use := useMap[id]
		result, ok := resultMap[id]
		if !ok {
			analysis.OrphanUses = append(analysis.OrphanUses, BlockRef{
				Message: use.msg, Block: use.block, ToolID: id, ToolName: use.name,
			})
			continue
		}
		matched[id] = true
		analysis.Pairs = append(analysis.Pairs, ToolPair{
			ToolID:        id,
			UseMessage:    use.msg,
			UseBlock:      use.block,
			ResultMessage: result.msg,
			ResultBlock:   result.block,
			ToolName:      use.name,
			Complete:      true,
		})
		analysis.link(use.msg, result.msg)
	}

	for mi := range messages {
		for bi, b := range messages[mi].Blocks {
			if b.Type != qmodels.BlockToolResult || b.ToolID == "" {
				continue
			}
			if _, hasUse := useMap[b.ToolID]; !hasUse {
				analysis.OrphanResults = append(analysis.OrphanResults, BlockRef{
					Message: mi, Block: bi, ToolID: b.ToolID,
				})
			}
		}
	}

	return analysis
}

func (a *PairAnalysis) link(useMsg, resultMsg int) {
	for _, i := range []int{useMsg, resultMsg} {
		if a.linked[i] == nil {
			a.linked[i] = make(map[int]bool)
		}
	}
	a.linked[useMsg][useMsg] = true
	a.linked[useMsg][resultMsg] = true
	a.linked[resultMsg][useMsg] = true
	a.linked[resultMsg][resultMsg] = true
}

// LinkedIndices returns the sorted set of message indices tied to index i
// through tool pairs, including i itself. Empty when i is not part of a pair.
func (a *PairAnalysis) LinkedIndices(i int) []int {
	set, ok := a.linked[i]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Paired reports whether message index i participates in any complete pair.
func (a *PairAnalysis) Paired(i int) bool {
	_, ok := a.linked[i]
	return ok
}
