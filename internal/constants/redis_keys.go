package constants

import "fmt"

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"

	// EntityResult 匹配结果实体
	EntityResult = "result"

	// KeyMatchResult 某用户某档案的匹配结果 (STRING, JSON)
	// 格式: app:match:result:{userID}:{profileID}
	KeyMatchResult = AppPrefix + ":" + MatchModulePrefix + ":" + EntityResult + ":%s:%s"
)

// MatchResultKey 生成匹配结果缓存键
func MatchResultKey(userID, profileID string) string {
	return fmt.Sprintf(KeyMatchResult, userID, profileID)
}
