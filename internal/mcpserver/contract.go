package mcpserver

// DocumentFormat describes how documents handed to ingest_document are
// read, so that LLM consumers can write documents that link cleanly.
const DocumentFormat = `# Casebook Document Format

Documents are UTF-8 text (Markdown or plain text). Hints that tie a document
to a client and a session are read from three places, first match wins.

## 1. YAML frontmatter

` + "```" + `markdown
---
client: John Best           # client name as written by the practice
date: 2024-12-05            # date of service, ISO or US order (12/5/2024)
session: s-42               # optional: session id or calendar event id
kind: progress_note         # document | progress_note
---

Body text.
` + "```" + `

## 2. Labelled header lines

` + "```" + `text
Client: John Best
Date of service: 12/5/24
Session: s-42
` + "```" + `

Accepted labels: client, client name, patient, name; date, date of service,
session date, dos; session, session id; kind, type.

## 3. File name

` + "`" + `John Best 12-5-2024.md` + "`" + ` yields client "John Best" and date 2024-12-05.
Words such as "notes", "scan", "final" and "copy" are ignored. A single
remaining word is not treated as a client name.

## Matching

- Names match after case folding, punctuation removal and nickname
  expansion ("Chris" and "Christopher" are the same client).
- A document links to a session of its client on the same civil day as its
  date, otherwise to the nearest session within one day.
- Anything that cannot be linked lands in the review queue with a reason.
- Sending the same bytes twice is a no-op.
`
