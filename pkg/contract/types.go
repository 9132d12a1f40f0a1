package contract

import "unicode/utf8"

// FileID: 逻辑输入标识（通常为路径，需规范化，跨平台一致）。
type FileID string

// Fragment: 输入行切分后的有界文本片段。
// 约束：长度（按 Unicode 码点计）不超过 Source 的上限；按序拼接可还原原始输入（含换行符）。
type Fragment string

// Len 返回码点数。
func (f Fragment) Len() int { return utf8.RuneCountInString(string(f)) }

// Batch: 若干连续 Fragment 的拼接，作为一次翻译请求的单位。
// Words 为批内各片段空白分词数之和，Text 为片段按到达顺序的直接拼接。
type Batch struct {
	Text  string
	Words int
}

// Field: 结果段中可选的输出字段。
type Field string

const (
	FieldTranslated     Field = "translated"
	FieldTransliterated Field = "transliterated"
)

// Valid 判断是否为已识别字段。
func (f Field) Valid() bool {
	return f == FieldTranslated || f == FieldTransliterated
}

// Segment: 一段翻译结果；键缺失表示该字段不存在（区别于空串）。
type Segment map[Field]string

// Get 返回字段值及是否存在。
func (s Segment) Get(f Field) (string, bool) {
	v, ok := s[f]
	return v, ok
}

// TranslationResult: 一次翻译调用的有序结果段。零段为合法结果。
type TranslationResult struct {
	Segments []Segment
}
