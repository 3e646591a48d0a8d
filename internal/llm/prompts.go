package llm

const pagePrompt = `Analyze this page from a scientific paper.
1. Transcribe the full text content into clean Markdown format. Preserve headers, lists, and basic formatting.
2. Identify visual figures, diagrams, or chemical schemes. Return their bounding boxes (ymin, xmin, ymax, xmax) as integers normalized to 0-1000, where (0,0) is the top-left corner of the page.

Return a JSON object with this schema:
{
  "markdown": "The full markdown text...",
  "figures": [
    { "ymin": 0, "xmin": 0, "ymax": 100, "xmax": 100, "label": "Figure 1: Title" }
  ]
}

Return ONLY the JSON object. Do not wrap it in code fences.`

const chemistryPrompt = `Analyze the chemical structure in this image.
Convert the structure into its corresponding SMILES string.
If multiple structures are present, provide the SMILES for the most prominent one.
Also provide a short confidence assessment, exactly one of: High, Medium, Low.

Return a JSON object: {"smiles": "...", "confidence": "High"}`
