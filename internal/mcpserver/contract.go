package mcpserver

// FrontmatterContract describes the frontmatter shape the update rules can
// read and rewrite, for LLM consumers editing documents by hand.
const FrontmatterContract = `# Tally Frontmatter Contract

Rules only touch documents whose very first line is a ` + "`---`" + ` fence.

## Structure

` + "```" + `markdown
---
views: 12                           # count-up / count-down: an integer
edits: [2025-01-15, 2025-01-20]     # append-date: a list of YYYY-MM-DD dates
reviewed: 2025-01-20                # refresh-date: a single YYYY-MM-DD date
words: 348                          # word-count: an integer
---

Body text. Only the body is counted by word-count rules.
` + "```" + `

## Rules

1. **The opening fence must be the first line** and the closing fence must be a line
   containing exactly ` + "`---`" + ` followed by a newline. Anything else means the
   document has no frontmatter and no rule will change it.
2. **One key per line.** A line that starts with ` + "`key:`" + ` begins a field; indented
   lines and list items below it belong to that field.
3. **Counters are plain integers.** A counter that holds anything else is reset to 1 the
   next time its rule runs.
4. **Date lists** may be written inline (` + "`[a, b]`" + `) or as a block list; rules always
   write them back inline, sorted and without duplicates.
5. **Duplicate keys** are ignored after their first occurrence.
6. **Ignored folders** (see list_rules) are never modified.

## Tools

- ` + "`list_rules`" + ` shows every rule with its trigger and type.
- ` + "`list_commands`" + ` shows the command ids ` + "`run_command`" + ` accepts.
- ` + "`fire_trigger`" + ` replays ` + "`file-opened`" + ` or ` + "`document-modified`" + ` against a document.
`
