// Package translate provides the translation collaborator. The production
// implementation uses the Gemini API with a configurable instruction prompt
// and glossary; the pipeline depends only on the Translator interface.
package translate
