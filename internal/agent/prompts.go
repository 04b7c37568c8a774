package agent

import "fmt"

// planningTemperature keeps tool-call output deterministic and parseable,
// independent of the caller's sampling temperature.
const planningTemperature = 0.2

// continuationClause is appended after each successful step so the model
// sees the outcome before choosing the next action.
const continuationClause = "请根据以上结果继续回答或执行下一个工具。如果任务已完成，请直接回答，不要调用工具。"

// BuildSystemPrompt renders the planning system prompt from the tool catalog.
func BuildSystemPrompt(catalog string) string {
	return fmt.Sprintf(`你是一个智能助手，可以调用工具来完成用户的任务。

可用工具：
%s
调用工具时，输出一个 JSON 对象，格式如下：
`+"```json"+`
{"tool_name": "工具名称", "parameters": {"参数名": "参数值"}}
`+"```"+`

规则：
1. 每次只能调用一个工具。
2. 如果不需要工具，直接用自然语言回答。
3. 任务完成后，调用 task_complete 或直接给出答案，不要重复调用工具。
4. 参数值必须符合工具的参数说明，必填参数不能省略。`, catalog)
}

// summarySystemPrompt instructs the final summarization call.
const summarySystemPrompt = `你是一个智能助手。请根据已执行工具的实际输出回答用户的问题。

要求：
1. 只使用工具的真实输出，绝不编造信息。
2. 如果某个步骤失败了，请直接说明失败原因。
3. 网页搜索结果和知识库文档请使用 markdown 格式，链接使用可点击的形式。
4. 先给结论，不要罗列行动计划。`

// buildStepTrace renders an executed step for the evolving planning prompt.
func buildStepTrace(call ToolCall, formatted string, failed bool, reason string) string {
	if failed {
		return fmt.Sprintf("\n\n已执行工具：%s\n执行结果：%s\n工具执行失败，原因：%s，请重新规划。", call.Name, formatted, reason)
	}
	return fmt.Sprintf("\n\n已执行工具：%s\n执行结果：%s\n%s", call.Name, formatted, continuationClause)
}

// buildSummaryPrompt renders the user prompt for the summarization call.
func buildSummaryPrompt(message string, traces []string) string {
	prompt := fmt.Sprintf("用户的问题：%s\n\n以下是已执行工具的结果：\n", message)
	for i, tr := range traces {
		prompt += fmt.Sprintf("\n### 步骤 %d\n%s\n", i+1, tr)
	}
	prompt += "\n请根据以上结果回答用户的问题。"
	return prompt
}
