package deck

import (
	"fmt"
	"path/filepath"
)

// Output layout of one deck in one language, all under the output directory:
//
//	{base}_{lang}_with_notes{ext}
//	{base}_{lang}_with_visuals{ext}
//	{base}_{lang}_visuals/slide_{idx}_reimagined.png
//	{base}_{lang}_videos/slide_{idx}_video_prompt.txt

func NotesOutputPath(outputDir, base, lang, ext string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_with_notes%s", base, lang, ext))
}

func VisualsOutputPath(outputDir, base, lang, ext string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_with_visuals%s", base, lang, ext))
}

func VisualsDir(outputDir, base, lang string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_visuals", base, lang))
}

func VideosDir(outputDir, base, lang string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_videos", base, lang))
}
