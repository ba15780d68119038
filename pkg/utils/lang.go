package utils

import (
	"github.com/abadojack/whatlanggo"
)

var whatLangOpts = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Cmn: true,
		whatlanggo.Spa: true,
		whatlanggo.Fra: true,
		whatlanggo.Deu: true,
		whatlanggo.Por: true,
		whatlanggo.Rus: true,
		whatlanggo.Jpn: true,
	},
}

// WhatLang 返回 ISO 639-3 语言代码，无法判断时返回空字符串
func WhatLang(content string) string {
	info := whatlanggo.DetectWithOptions(content, whatLangOpts)
	if info.Confidence == 0 {
		return ""
	}
	return info.Lang.Iso6393()
}
