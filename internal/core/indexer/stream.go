package indexer

import (
	"fmt"
	"regexp"
	"strings"

	"code-indexer/pkg/constants"
)

var contentHashPattern = regexp.MustCompile(fmt.Sprintf(`^[0-9a-f]{%d}$`, constants.ContentHashLength))

type section int

const (
	sectionNone section = iota
	sectionHeader
	sectionVersion
	sectionID
	sectionUnknown
)

// StreamParser 解析外部索引器的分段输出
//
//	--section-start--
//	version,build_time
//	v1.4.0,2024-11-02T10:00:00Z
//	--section-start--
//	id
//	<64 位小写 hex>
//
// 标记行之后的第一行是段头部, 未知段整体跳过, 段内非法行直接丢弃.
type StreamParser struct {
	section section
	onHash  func(hash string) error

	Version   string
	BuildTime string
}

func NewStreamParser(onHash func(hash string) error) *StreamParser {
	return &StreamParser{onHash: onHash}
}

// Feed 处理一行输出, 只有 onHash 返回的错误会向上传递
func (p *StreamParser) Feed(line string) error {
	line = strings.TrimSpace(line)
	if line == constants.StreamSectionMarker {
		p.section = sectionHeader
		return nil
	}
	if line == "" {
		return nil
	}

	switch p.section {
	case sectionHeader:
		switch line {
		case constants.StreamVersionHeader:
			p.section = sectionVersion
		case constants.StreamIDHeader:
			p.section = sectionID
		default:
			p.section = sectionUnknown
		}
	case sectionVersion:
		parts := strings.Split(line, ",")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			p.Version, p.BuildTime = parts[0], parts[1]
		}
	case sectionID:
		if contentHashPattern.MatchString(line) && p.onHash != nil {
			return p.onHash(line)
		}
	}
	return nil
}
