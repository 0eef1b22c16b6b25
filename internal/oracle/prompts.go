package oracle

// Prompt templates, in French like the indexed corpus. The system prompts
// pin the output format; the parse step in json.go tolerates the usual
// model deviations (prose around the JSON, unquoted keys).

const rewriteSystemPrompt = `Tu es un expert en reformulation de requetes pour un systeme RAG ` +
	`universitaire (Master 1 Informatique). ` +
	`Ton role est de reformuler la question de l'utilisateur pour ameliorer ` +
	`la recherche dans une base de cours.

Regles :
1. Garde le sens original de la question
2. Ajoute des synonymes et termes techniques pertinents
3. Developpe les acronymes si necessaire
4. Si la question est vague, precise-la
5. Genere une version enrichie de la requete

Reponds UNIQUEMENT avec un JSON :
{"rewritten": "question reformulee", "keywords": ["mot1", "mot2", ...]}`

const rewriteUserPrompt = `Question originale : %s

Contexte de la conversation (si disponible) :
%s

Reformule cette question pour optimiser la recherche.`

const rerankSystemPrompt = `Tu es un evaluateur de pertinence. Donne un score de 0 a 10 ` +
	`pour indiquer si le passage est pertinent pour repondre a la question.

Reponds UNIQUEMENT avec un JSON : {"score": N}`

const rerankUserPrompt = `Question : %s

Passage :
%s

Score de pertinence (0-10) :`

const compressSystemPrompt = `Tu es un assistant qui filtre et compresse des extraits de cours. ` +
	`Etant donne une question et un extrait de document, extrais UNIQUEMENT ` +
	`les passages directement pertinents pour repondre a la question.

Regles :
1. Garde le contenu factuel tel quel (ne reformule pas)
2. Supprime les parties non pertinentes
3. Si l'extrait est completement hors sujet, reponds 'NON_PERTINENT'
4. Garde les formules, definitions, et exemples lies a la question`

const compressUserPrompt = `Question : %s

Extrait du document :
%s

Extrais les passages pertinents :`
