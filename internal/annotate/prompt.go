package annotate

// SystemInstructions is sent ahead of every conversation.
const SystemInstructions = `You will receive one conversation thread as JSON, shaped like:
{
  "conversation": [
    {
      "id": "22",
      "author": "user100",
      "message": "Why does iced coffee hit different tho",
      "replies": [
        {"id": "23", "author": "user101", "message": "Because it's basically personality fuel.", "replies": []}
      ]
    }
  ]
}

Return ONLY a JSON array with one object per message node, giving its "id", its "author",
and a "keywords" array that describes the intent, tone, or function of that message.
Never copy the message text into the output.

Rules:
- The output must be valid JSON: no trailing commas and no surrounding prose.
- Flatten nested replies so every node in the tree appears exactly once.
- Use 2 to 6 short lowercase keywords per node; single or hyphenated words.
- No hashtags, emojis, punctuation, or repeated keywords.
- Copy "id" and "author" verbatim as strings; never invent new ones.

Target format:
[
  {"id":"1","author":"Zara","keywords":["rant","question","request","overwhelmed"]},
  {"id":"2","author":"Kai","keywords":["agreement","advice","product-rec","callback"]}
]
`
