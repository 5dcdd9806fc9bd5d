package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnmarshalLoose 解析模型输出里的 JSON 对象：容忍载荷前后混入的杂质
// （推理痕迹、markdown 代码栅栏等），截取首个大括号块解析。
func UnmarshalLoose(payload string, v any) error {
	trimmed := strings.TrimSpace(payload)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("missing json object")
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), v)
}
